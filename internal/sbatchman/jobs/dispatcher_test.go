package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armadaproject/sbatchman/internal/common/logging"
	"github.com/armadaproject/sbatchman/internal/common/pointer"
	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/templating"
)

type fakeStore struct {
	mu       sync.Mutex
	cluster  *Cluster
	configs  []*Config
	jobs     map[int64]*Job
	nextId   int64
	statuses map[int64][]Status
	failOn   string
	// failStatusOn names a job whose status update fails.
	failStatusOn string
}

func newFakeStore(maxJobs *int) *fakeStore {
	return &fakeStore{
		cluster:  &Cluster{Id: 1, Name: "local", Scheduler: LocalKind, MaxJobs: maxJobs},
		configs:  []*Config{{Id: 10, Name: "cpu", ClusterId: 1}, {Id: 11, Name: "gpu", ClusterId: 1}},
		jobs:     map[int64]*Job{},
		statuses: map[int64][]Status{},
	}
}

func (s *fakeStore) GetClusterByName(_ context.Context, name string) (*Cluster, error) {
	if name != s.cluster.Name {
		return nil, errors.Errorf("cluster %s not found", name)
	}
	return s.cluster, nil
}

func (s *fakeStore) GetConfigsByCluster(_ context.Context, _ int64) ([]*Config, error) {
	return s.configs, nil
}

func (s *fakeStore) CreateJob(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.Name == s.failOn {
		return errors.New("disk full")
	}
	s.nextId++
	job.Id = s.nextId
	stored := *job
	s.jobs[job.Id] = &stored
	s.statuses[job.Id] = append(s.statuses[job.Id], job.Status)
	return nil
}

func (s *fakeStore) UpdateJobPath(_ context.Context, id int64, directory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Directory = directory
	return nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, id int64, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[id].Name == s.failStatusOn {
		return errors.New("database is read-only")
	}
	s.jobs[id].Status = status
	s.statuses[id] = append(s.statuses[id], status)
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	kind     Kind
	enqueued int
	launched *[]string
	failOn   map[string]bool
	// beforeLaunch runs, by job name, before a launch is recorded.
	beforeLaunch map[string]func(ctx context.Context)
}

func (l *fakeLauncher) LaunchJob(ctx context.Context, job *Job, _ ClusterConfig) error {
	if hook, ok := l.beforeLaunch[job.Name]; ok {
		hook(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.launched = append(*l.launched, fmt.Sprintf("%s:%s", l.kind, job.Name))
	if l.kind == VirtualScheduler {
		job.Status = VirtualQueue
		return nil
	}
	if l.failOn[job.Name] {
		return &ErrSpawn{Command: job.Command, Cause: errors.New("no such file")}
	}
	job.Status = Completed
	return nil
}

func (l *fakeLauncher) NumberOfEnqueuedJobs(_ context.Context) (int, error) {
	return l.enqueued, nil
}

func materialized(names ...string) []templating.MaterializedJob {
	out := make([]templating.MaterializedJob, len(names))
	for i, n := range names {
		out[i] = templating.MaterializedJob{Name: n, Config: "cpu", Command: "echo " + n, Variables: map[string]string{"N": n}}
	}
	return out
}

func newTestDispatcher(t *testing.T, store Store, enqueued int, failOn map[string]bool) (*Dispatcher, *[]string) {
	launched := &[]string{}
	local := &fakeLauncher{kind: LocalScheduler, enqueued: enqueued, launched: launched, failOn: failOn}
	virtual := &fakeLauncher{kind: VirtualScheduler, launched: launched}
	factory := func(kind Kind) Launcher {
		if kind == VirtualScheduler {
			return virtual
		}
		return local
	}
	d := NewDispatcher(store, t.TempDir(), factory, &util.DummyClock{}, logging.NullLogger.WithField("test", true))
	return d, launched
}

func TestDispatcher_Launch(t *testing.T) {
	tests := map[string]struct {
		maxJobs   *int
		enqueued  int
		jobs      []string
		launched  []string
		submitted int
	}{
		"no limit": {
			jobs:      []string{"a", "b", "c"},
			launched:  []string{"local:a", "local:b", "local:c"},
			submitted: 3,
		},
		"limit splits batch in order": {
			maxJobs:   pointer.Pointer(2),
			jobs:      []string{"a", "b", "c", "d"},
			launched:  []string{"local:a", "local:b", "virtual:c", "virtual:d"},
			submitted: 2,
		},
		"enqueued jobs count against limit": {
			maxJobs:   pointer.Pointer(3),
			enqueued:  2,
			jobs:      []string{"a", "b", "c"},
			launched:  []string{"local:a", "virtual:b", "virtual:c"},
			submitted: 1,
		},
		"enqueued beyond limit": {
			maxJobs:   pointer.Pointer(1),
			enqueued:  5,
			jobs:      []string{"a", "b"},
			launched:  []string{"virtual:a", "virtual:b"},
			submitted: 0,
		},
		"limit above batch size": {
			maxJobs:   pointer.Pointer(10),
			jobs:      []string{"a"},
			launched:  []string{"local:a"},
			submitted: 1,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore(tc.maxJobs)
			d, launched := newTestDispatcher(t, store, tc.enqueued, nil)

			result, err := d.Launch(context.Background(), "local", materialized(tc.jobs...))
			require.NoError(t, err)
			assert.Equal(t, tc.launched, *launched)
			assert.Equal(t, tc.submitted, result.Submitted)
			assert.NotEmpty(t, result.BatchId)
			require.Len(t, result.Jobs, len(tc.jobs))
			for i, job := range result.Jobs {
				expected := Completed
				if i >= tc.submitted {
					expected = VirtualQueue
				}
				assert.Equal(t, expected, store.jobs[job.Id].Status)
				assert.Equal(t, []Status{Created, expected}, store.statuses[job.Id])
				assert.Equal(t, JobDirectory(d.root, job.Id), store.jobs[job.Id].Directory)
				assert.Equal(t, int64(10), store.jobs[job.Id].ConfigId)
				assert.Equal(t, map[string]string{"N": tc.jobs[i]}, store.jobs[job.Id].Variables)
			}
		})
	}
}

func TestDispatcher_LaunchFailureDoesNotStopBatch(t *testing.T) {
	store := newFakeStore(nil)
	d, launched := newTestDispatcher(t, store, 0, map[string]bool{"b": true})

	result, err := d.Launch(context.Background(), "local", materialized("a", "b", "c"))
	require.Error(t, err)
	assert.Equal(t, []string{"local:a", "local:b", "local:c"}, *launched)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 1)
	var launchErr *ErrLaunch
	require.ErrorAs(t, merr.Errors[0], &launchErr)
	assert.Equal(t, "b", launchErr.JobName)
	var spawnErr *ErrSpawn
	assert.ErrorAs(t, launchErr, &spawnErr)

	statuses := []Status{}
	for _, job := range result.Jobs {
		statuses = append(statuses, store.jobs[job.Id].Status)
	}
	assert.Equal(t, []Status{Completed, FailedSubmission, Completed}, statuses)
}

func TestDispatcher_MissingConfigCreatesNothing(t *testing.T) {
	store := newFakeStore(nil)
	d, launched := newTestDispatcher(t, store, 0, nil)
	jobs := materialized("a", "b")
	jobs[1].Config = "tpu"

	_, err := d.Launch(context.Background(), "local", jobs)
	var notFound *ErrConfigNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "tpu", notFound.Config)
	assert.Empty(t, store.jobs)
	assert.Empty(t, *launched)
}

func TestDispatcher_StoreFailureStopsBatch(t *testing.T) {
	store := newFakeStore(nil)
	store.failOn = "b"
	d, launched := newTestDispatcher(t, store, 0, nil)

	result, err := d.Launch(context.Background(), "local", materialized("a", "b", "c"))
	require.Error(t, err)
	assert.Equal(t, []string{"local:a"}, *launched)
	assert.Len(t, result.Jobs, 1)
}

func TestDispatcher_Parallel(t *testing.T) {
	store := newFakeStore(pointer.Pointer(3))
	d, launched := newTestDispatcher(t, store, 0, map[string]bool{"b": true})
	d.Parallelism = 4

	result, err := d.Launch(context.Background(), "local", materialized("a", "b", "c", "d", "e", "f"))
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"local:a", "local:b", "local:c", "virtual:d", "virtual:e", "virtual:f"}, *launched)
	require.Len(t, result.Jobs, 6)
	for i, job := range result.Jobs {
		assert.Equal(t, int64(i+1), job.Id)
	}
}

func TestDispatcher_ParallelStoreFailureStopsCreation(t *testing.T) {
	store := newFakeStore(nil)
	store.failStatusOn = "a"
	d, launched := newTestDispatcher(t, store, 0, nil)
	bStarted := make(chan struct{})
	d.launchers(LocalScheduler).(*fakeLauncher).beforeLaunch = map[string]func(ctx context.Context){
		"a": func(context.Context) { <-bStarted },
		"b": func(ctx context.Context) {
			close(bStarted)
			<-ctx.Done()
		},
	}
	d.Parallelism = 2

	result, err := d.Launch(context.Background(), "local", materialized("a", "b", "c", "d"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is read-only")
	assert.ElementsMatch(t, []string{"local:a", "local:b"}, *launched)
	require.Len(t, result.Jobs, 2)
	assert.Len(t, store.jobs, 2)
}

func TestDispatcher_LocalEndToEnd(t *testing.T) {
	requireCommands(t, "bash", "date")
	store := newFakeStore(pointer.Pointer(1))
	root := t.TempDir()
	d := NewDispatcher(store, root, nil, nil, logging.NullLogger.WithField("test", true))

	result, err := d.Launch(context.Background(), "local", materialized("first", "second"))
	require.NoError(t, err)
	require.Len(t, result.Jobs, 2)
	assert.Equal(t, Completed, store.jobs[result.Jobs[0].Id].Status)
	assert.Equal(t, VirtualQueue, store.jobs[result.Jobs[1].Id].Status)
	assert.FileExists(t, filepath.Join(root, "jobs", "1", StdoutFileName))
	assert.NoFileExists(t, filepath.Join(root, "jobs", "2", ScriptFileName))
}
