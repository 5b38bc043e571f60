package cmd

import (
	"github.com/spf13/cobra"

	"github.com/armadaproject/sbatchman/internal/sbatchman"
)

func configureCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure <cluster-file>",
		Short: "Import clusters and their configs",
		Long: `Imports the clusters defined in a YAML file:

clusters:
  hpc:
    scheduler: slurm
    max_jobs: 100
    default_conf:
      account: proj
    configs:
      - name: cpu_${ntasks}
        params:
          ntasks: ${ntasks}
variables:
  ntasks: [1, 4]`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			return app.Configure(cmd.Context(), args[0])
		},
	}
	return cmd
}

func clustersCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List configured clusters",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			return app.Clusters(cmd.Context())
		},
	}
	return cmd
}
