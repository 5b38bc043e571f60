package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/sbatchman/internal/sbatchman"
)

func versionCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Version()
		},
	}
	return cmd
}
