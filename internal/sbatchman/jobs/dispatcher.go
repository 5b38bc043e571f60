package jobs

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/templating"
)

// Store is the persistence the dispatcher needs. Each call must be atomic for the row it touches.
type Store interface {
	GetClusterByName(ctx context.Context, name string) (*Cluster, error)
	GetConfigsByCluster(ctx context.Context, clusterId int64) ([]*Config, error)
	// CreateJob inserts job, assigning its Id.
	CreateJob(ctx context.Context, job *Job) error
	UpdateJobPath(ctx context.Context, id int64, directory string) error
	UpdateJobStatus(ctx context.Context, id int64, status Status) error
}

// LauncherFactory returns the launcher for a scheduler variant.
type LauncherFactory func(kind Kind) Launcher

// SchedulerFactory returns a LauncherFactory producing Schedulers that work in basePath.
func SchedulerFactory(basePath string, clock util.Clock, logger *log.Entry) LauncherFactory {
	return func(kind Kind) Launcher {
		return NewScheduler(kind, basePath, clock, logger)
	}
}

// Dispatcher turns materialized jobs into job records and launches them on their cluster.
type Dispatcher struct {
	store     Store
	root      string
	launchers LauncherFactory
	// Parallelism is the number of jobs launched at once. Values below 2 launch one job at a time, in order.
	Parallelism int
	clock       util.Clock
	logger      *log.Entry
}

// NewDispatcher returns a dispatcher that keeps job directories under root/jobs.
func NewDispatcher(store Store, root string, launchers LauncherFactory, clock util.Clock, logger *log.Entry) *Dispatcher {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if launchers == nil {
		launchers = SchedulerFactory(root, clock, logger)
	}
	return &Dispatcher{store: store, root: root, launchers: launchers, clock: clock, logger: logger}
}

// LaunchResult describes a launched batch.
type LaunchResult struct {
	BatchId string
	// Jobs are in the order they were given, with their final status.
	Jobs []*Job
	// Submitted is the number of jobs handed to the cluster's scheduler; the rest went to the virtual queue.
	Submitted int
}

// Launch creates and launches jobs on the named cluster.
//
// Every job must name a config of the cluster; otherwise nothing is created. When the cluster has a job limit
// only the first max_jobs minus already enqueued jobs are submitted and the rest are recorded in the virtual
// queue, keeping their order. A job that fails to launch is marked FailedSubmission and the batch carries on;
// such failures are returned together once every job has been handled.
func (d *Dispatcher) Launch(ctx context.Context, clusterName string, materialized []templating.MaterializedJob) (*LaunchResult, error) {
	cluster, err := d.store.GetClusterByName(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	configs, err := d.store.GetConfigsByCluster(ctx, cluster.Id)
	if err != nil {
		return nil, err
	}
	configsByName := make(map[string]*Config, len(configs))
	for _, c := range configs {
		configsByName[c.Name] = c
	}
	for _, mj := range materialized {
		if _, ok := configsByName[mj.Config]; !ok {
			return nil, &ErrConfigNotFound{Config: mj.Config, Cluster: cluster.Name}
		}
	}

	kind, err := ForCluster(cluster.Scheduler)
	if err != nil {
		return nil, err
	}
	launcher := d.launchers(kind)
	allowed, err := d.allowed(ctx, cluster, launcher, len(materialized))
	if err != nil {
		return nil, err
	}

	result := &LaunchResult{BatchId: util.NewULID(), Jobs: make([]*Job, 0, len(materialized)), Submitted: allowed}
	logger := d.logger.WithFields(log.Fields{"batch": result.BatchId, "cluster": cluster.Name})
	logger.Infof("launching %d jobs, %d held in the virtual queue", allowed, len(materialized)-allowed)

	var (
		mu       sync.Mutex
		failures *multierror.Error
	)
	record := func(job *Job, launchErr error) {
		if launchErr == nil {
			return
		}
		logger.WithError(launchErr).WithField("job", job.Id).Error("job launch failed")
		mu.Lock()
		failures = multierror.Append(failures, launchErr)
		mu.Unlock()
	}

	// A store failure cancels gctx. Slots are released only after that, so no further job is created once a
	// parallel launch has failed to record its status.
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	parallel := d.Parallelism > 1
	sem := semaphore.NewWeighted(int64(d.Parallelism))

	virtual := d.launchers(VirtualScheduler)
	for i, mj := range materialized {
		if parallel {
			if err := sem.Acquire(ctx, 1); err != nil {
				_ = g.Wait()
				return result, errors.WithStack(err)
			}
			if gctx.Err() != nil {
				sem.Release(1)
				break
			}
		}
		config := configsByName[mj.Config]
		job, err := d.createJob(ctx, mj, config)
		if err != nil {
			if parallel {
				sem.Release(1)
			}
			_ = g.Wait()
			return result, err
		}
		result.Jobs = append(result.Jobs, job)
		cc := ClusterConfig{Cluster: cluster, Config: config}
		l := launcher
		if i >= allowed {
			l = virtual
		}
		if !parallel {
			launchErr, storeErr := d.launch(ctx, l, job, cc)
			record(job, launchErr)
			if storeErr != nil {
				return result, storeErr
			}
			continue
		}
		g.Go(func() error {
			defer sem.Release(1)
			launchErr, storeErr := d.launch(gctx, l, job, cc)
			record(job, launchErr)
			if storeErr != nil {
				cancel()
			}
			return storeErr
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, failures.ErrorOrNil()
}

func (d *Dispatcher) allowed(ctx context.Context, cluster *Cluster, launcher Launcher, n int) (int, error) {
	if cluster.MaxJobs == nil {
		return n, nil
	}
	enqueued, err := launcher.NumberOfEnqueuedJobs(ctx)
	if err != nil {
		return 0, errors.WithMessagef(err, "could not count enqueued jobs on %s", cluster.Name)
	}
	allowed := *cluster.MaxJobs - enqueued
	if allowed < 0 {
		allowed = 0
	}
	if allowed > n {
		allowed = n
	}
	return allowed, nil
}

func (d *Dispatcher) createJob(ctx context.Context, mj templating.MaterializedJob, config *Config) (*Job, error) {
	job := &Job{
		Name:        mj.Name,
		ConfigId:    config.Id,
		SubmitTime:  d.clock.Now(),
		Command:     mj.Command,
		Status:      Created,
		Preprocess:  mj.Preprocess,
		Postprocess: mj.Postprocess,
		Variables:   mj.Variables,
	}
	if err := d.store.CreateJob(ctx, job); err != nil {
		return nil, errors.WithMessagef(err, "could not create job %s", mj.Name)
	}
	job.Directory = JobDirectory(d.root, job.Id)
	if err := job.PrepareDirectory(); err != nil {
		return nil, err
	}
	if err := d.store.UpdateJobPath(ctx, job.Id, job.Directory); err != nil {
		return nil, errors.WithMessagef(err, "could not set directory of job %d", job.Id)
	}
	return job, nil
}

// launch returns the launch failure, which is recorded and tolerated, separately from a store failure, which
// stops the batch.
func (d *Dispatcher) launch(ctx context.Context, launcher Launcher, job *Job, cc ClusterConfig) (launchErr error, storeErr error) {
	if err := launcher.LaunchJob(ctx, job, cc); err != nil {
		job.Status = FailedSubmission
		launchErr = &ErrLaunch{JobId: job.Id, JobName: job.Name, Cause: err}
	}
	if err := d.store.UpdateJobStatus(ctx, job.Id, job.Status); err != nil {
		return launchErr, errors.WithMessagef(err, "could not update status of job %d", job.Id)
	}
	return launchErr, nil
}
