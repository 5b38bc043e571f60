// Package repository persists clusters, their configs and the jobs launched through them.
//
// Two backends implement Repository: SQLiteRepository, which keeps the workspace database file, and
// MemoryRepository, which is backed by go-memdb and used for tests and throwaway runs.
package repository

import (
	"context"
	"strconv"

	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
)

// JobFilter restricts ListJobs. Zero values match everything.
type JobFilter struct {
	Cluster string
	Status  *jobs.Status
}

func (f JobFilter) matches(summary *JobSummary) bool {
	if f.Cluster != "" && summary.ClusterName != f.Cluster {
		return false
	}
	if f.Status != nil && summary.Job.Status != *f.Status {
		return false
	}
	return true
}

// JobSummary is a job together with the names of the cluster and config it was launched on.
type JobSummary struct {
	Job         *jobs.Job
	ClusterName string
	ConfigName  string
}

type Repository interface {
	jobs.Store
	// CreateClusterWithConfigs inserts cluster and then each of its configs, assigning ids.
	// A config that cannot be inserted is skipped with a warning; only a failure to create the cluster is returned.
	CreateClusterWithConfigs(ctx context.Context, cluster *jobs.Cluster, configs []*jobs.Config) error
	ListClusters(ctx context.Context) ([]*jobs.Cluster, error)
	GetJob(ctx context.Context, id int64) (*jobs.Job, error)
	// ListJobs returns matching jobs ordered by id.
	ListJobs(ctx context.Context, filter JobFilter) ([]*JobSummary, error)
	HealthCheck(ctx context.Context) error
}

func jobNotFound(id int64) error {
	return &ErrNotFound{Type: "job", Value: strconv.FormatInt(id, 10)}
}

// checkTransition accepts forward moves. Repeating the current status is reported as unchanged.
func checkTransition(id int64, current, next jobs.Status) (changed bool, err error) {
	if current == next {
		return false, nil
	}
	if !current.CanTransitionTo(next) {
		return false, &ErrInvalidTransition{JobId: id, From: current, To: next}
	}
	return true, nil
}

func clusterNotFound(name string) error {
	return &ErrNotFound{Type: "cluster", Value: name}
}
