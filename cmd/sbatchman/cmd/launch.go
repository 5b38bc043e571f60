package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/armadaproject/sbatchman/internal/sbatchman"
)

func launchCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch <job-file> [cluster]",
		Short: "Launch the jobs of a job file",
		Long: `Expands every job of the file for the cluster and launches the results.
Without a cluster argument the cluster set with set-cluster-name, or SBATCHMAN_CLUSTER_NAME, is used.`,
		Args: cobra.RangeArgs(1, 2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initParams(cmd, app); err != nil {
				return err
			}
			parallel, err := cmd.Flags().GetInt("parallel")
			if err != nil {
				return fmt.Errorf("error reading parallel: %s", err)
			}
			app.Params.Parallel = parallel
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			cluster := ""
			if len(args) > 1 {
				cluster = args[1]
			}
			return app.Launch(cmd.Context(), args[0], cluster)
		},
	}
	cmd.Flags().Int("parallel", 1, "Number of jobs launched at once")
	return cmd
}
