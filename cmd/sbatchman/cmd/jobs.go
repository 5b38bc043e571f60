package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/armadaproject/sbatchman/internal/sbatchman"
	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
	"github.com/armadaproject/sbatchman/internal/sbatchman/repository"
)

func jobsCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List launched jobs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			cluster, err := cmd.Flags().GetString("cluster")
			if err != nil {
				return fmt.Errorf("error reading cluster: %s", err)
			}
			statusName, err := cmd.Flags().GetString("status")
			if err != nil {
				return fmt.Errorf("error reading status: %s", err)
			}

			filter := repository.JobFilter{Cluster: cluster}
			if statusName != "" {
				status, err := jobs.ParseStatus(statusName)
				if err != nil {
					return err
				}
				filter.Status = &status
			}
			return app.Jobs(cmd.Context(), filter)
		},
	}
	cmd.Flags().String("cluster", "", "Only list jobs of this cluster")
	cmd.Flags().String("status", "", "Only list jobs in this status, e.g. Running")
	return cmd
}

func logCmd(app *sbatchman.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <job-id>",
		Short: "Show the state of a job recorded in its log file",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q: %s", args[0], err)
			}
			return app.Log(cmd.Context(), id)
		},
	}
	return cmd
}
