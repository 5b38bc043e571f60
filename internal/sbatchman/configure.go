package sbatchman

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/parser"
)

// Configure imports the clusters and configs defined in the file at path.
func (a *App) Configure(ctx context.Context, path string) error {
	w, err := a.workspace()
	if err != nil {
		return err
	}
	r, err := a.repo(w)
	if err != nil {
		return err
	}
	definitions, err := parser.ParseClusterFile(path, a.Evaluator, a.log())
	if err != nil {
		return err
	}
	for _, d := range definitions {
		if err := r.CreateClusterWithConfigs(ctx, d.Cluster, d.Configs); err != nil {
			return errors.WithMessagef(err, "could not import cluster %s", d.Cluster.Name)
		}
		a.log().WithField("cluster", d.Cluster.Name).Debugf("imported %s", d)
		fmt.Fprintf(a.Out, "Imported %s\n", d)
	}
	return nil
}

// Clusters lists the configured clusters.
func (a *App) Clusters(ctx context.Context) error {
	w, err := a.workspace()
	if err != nil {
		return err
	}
	r, err := a.repo(w)
	if err != nil {
		return err
	}
	clusters, err := r.ListClusters(ctx)
	if err != nil {
		return err
	}
	tsb := util.NewTabbedStringBuilder(1, 1, 2, ' ', 0)
	tsb.Row("NAME", "SCHEDULER", "MAX JOBS", "CONFIGS")
	for _, c := range clusters {
		configs, err := r.GetConfigsByCluster(ctx, c.Id)
		if err != nil {
			return err
		}
		maxJobs := "-"
		if c.MaxJobs != nil {
			maxJobs = fmt.Sprint(*c.MaxJobs)
		}
		tsb.Row(c.Name, c.Scheduler, maxJobs, len(configs))
	}
	fmt.Fprint(a.Out, tsb.String())
	return nil
}
