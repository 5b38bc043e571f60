package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/sbatchman/internal/sbatchman"
)

func initCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a workspace in the working directory",
		Long: `Creates a .sbatchman directory holding the workspace settings and the job database.
Commands run in the directory, or any directory below it, use this workspace.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			return app.Init()
		},
	}
	return cmd
}

func setClusterNameCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-cluster-name <cluster>",
		Short: "Set the cluster jobs are launched on by default",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			return app.SetClusterName(cmd.Context(), args[0])
		},
	}
	return cmd
}
