package sbatchman

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/armadaproject/sbatchman/internal/common/logging"
	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
	"github.com/armadaproject/sbatchman/internal/sbatchman/parser"
)

// Launch materializes the jobs of the file at path for cluster and launches them. An empty cluster means the
// one configured for the workspace.
func (a *App) Launch(ctx context.Context, path string, cluster string) error {
	w, err := a.workspace()
	if err != nil {
		return err
	}
	settings, err := a.settings(w)
	if err != nil {
		return err
	}
	cluster, err = settings.ResolveCluster(cluster)
	if err != nil {
		return err
	}
	r, err := a.repo(w)
	if err != nil {
		return err
	}

	file, err := parser.ParseJobFile(path, a.log())
	if err != nil {
		return err
	}
	materialized, err := file.Materialize(cluster, a.Evaluator, a.log())
	if err != nil {
		return err
	}

	jobsRoot := w.JobsRoot()
	if a.Params.Database == MemoryDatabase {
		// Memory ids restart at 1 in every process.
		jobsRoot = filepath.Join(jobsRoot, MemoryDatabase, util.NewULID())
	}
	dispatcher := jobs.NewDispatcher(r, jobsRoot, jobs.SchedulerFactory(w.Root, a.clock(), a.log()), a.clock(), a.log())
	dispatcher.Parallelism = a.Params.Parallel
	result, launchErr := dispatcher.Launch(ctx, cluster, materialized)
	if result != nil {
		a.printLaunch(result)
	}
	if launchErr != nil {
		logging.WithStacktrace(a.log(), logging.TopmostWithCause(launchErr)).Debug("launch failed")
	}
	return launchErr
}

func (a *App) printLaunch(result *jobs.LaunchResult) {
	tsb := util.NewTabbedStringBuilder(1, 1, 2, ' ', 0)
	tsb.Row("ID", "NAME", "STATUS", "DIRECTORY")
	for _, job := range result.Jobs {
		tsb.Row(job.Id, job.Name, job.Status, job.Directory)
	}
	fmt.Fprint(a.Out, tsb.String())
	fmt.Fprintf(a.Out, "Batch %s: %d of %d jobs submitted\n", result.BatchId, result.Submitted, len(result.Jobs))
}
