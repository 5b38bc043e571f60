package jobs

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/sbatchman/internal/common/util"
)

// Kind selects the behaviour of a Scheduler.
type Kind int

const (
	LocalScheduler Kind = iota
	SlurmScheduler
	PbsScheduler
	// VirtualScheduler holds jobs back without submitting them.
	VirtualScheduler
)

func (k Kind) String() string {
	switch k {
	case LocalScheduler:
		return "local"
	case SlurmScheduler:
		return "slurm"
	case PbsScheduler:
		return "pbs"
	case VirtualScheduler:
		return "virtual"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ForCluster returns the scheduler variant that submits jobs for clusters of the given kind.
func ForCluster(kind SchedulerKind) (Kind, error) {
	switch kind {
	case LocalKind:
		return LocalScheduler, nil
	case SlurmKind:
		return SlurmScheduler, nil
	case PbsKind:
		return PbsScheduler, nil
	default:
		return 0, &ErrUnknownScheduler{Name: kind.String()}
	}
}

// Launcher submits jobs and reports how many are already waiting.
type Launcher interface {
	LaunchJob(ctx context.Context, job *Job, cc ClusterConfig) error
	NumberOfEnqueuedJobs(ctx context.Context) (int, error)
}

// Scheduler builds scripts for and launches jobs on one kind of scheduler.
// Slurm and PBS write their scripts but do not submit them yet.
type Scheduler struct {
	kind Kind
	// basePath is the working directory job scripts change into.
	basePath string
	clock    util.Clock
	logger   *log.Entry
}

func NewScheduler(kind Kind, basePath string, clock util.Clock, logger *log.Entry) *Scheduler {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Scheduler{
		kind:     kind,
		basePath: basePath,
		clock:    clock,
		logger:   logger.WithField("scheduler", kind.String()),
	}
}

func (s *Scheduler) Kind() Kind {
	return s.kind
}

// CreateJobScript returns the script that runs job under cc. Virtual jobs have no script.
func (s *Scheduler) CreateJobScript(job *Job, cc ClusterConfig) (string, error) {
	var flags map[string]any
	if cc.Config != nil {
		flags = cc.Config.Flags
	}
	switch s.kind {
	case LocalScheduler:
		return buildScript(job, cc, s.basePath, nil)
	case SlurmScheduler:
		return buildScript(job, cc, s.basePath, slurmDirectives(job, flags))
	case PbsScheduler:
		return buildScript(job, cc, s.basePath, pbsDirectives(job, flags))
	case VirtualScheduler:
		return "", nil
	default:
		return "", errors.Errorf("unknown scheduler kind %d", int(s.kind))
	}
}

// LaunchJob runs job to completion on the local machine, or records it for the other variants.
// job.Status reflects the outcome when LaunchJob returns.
func (s *Scheduler) LaunchJob(ctx context.Context, job *Job, cc ClusterConfig) error {
	switch s.kind {
	case LocalScheduler:
		return s.launchLocal(ctx, job, cc)
	case SlurmScheduler, PbsScheduler:
		return s.writeUnsubmitted(job, cc)
	case VirtualScheduler:
		return s.holdVirtual(job)
	default:
		return errors.Errorf("unknown scheduler kind %d", int(s.kind))
	}
}

// NumberOfEnqueuedJobs is always 0: local jobs run immediately and scheduler queues are not queried yet.
func (s *Scheduler) NumberOfEnqueuedJobs(_ context.Context) (int, error) {
	switch s.kind {
	case LocalScheduler, SlurmScheduler, PbsScheduler, VirtualScheduler:
		return 0, nil
	default:
		return 0, errors.Errorf("unknown scheduler kind %d", int(s.kind))
	}
}

// writeUnsubmitted leaves a ready-to-submit script in the job directory.
func (s *Scheduler) writeUnsubmitted(job *Job, cc ClusterConfig) error {
	if err := job.PrepareDirectory(); err != nil {
		return err
	}
	if err := NewLogWriter(job.LogPath(), s.clock).Metadata(job); err != nil {
		return err
	}
	if err := s.writeScript(job, cc); err != nil {
		return err
	}
	s.logger.WithField("job", job.Id).Warnf("%s submission is not implemented; script written to %s", s.kind, job.ScriptPath())
	return nil
}

func (s *Scheduler) holdVirtual(job *Job) error {
	job.Status = VirtualQueue
	if job.Directory == "" {
		return nil
	}
	if err := job.PrepareDirectory(); err != nil {
		return err
	}
	logWriter := NewLogWriter(job.LogPath(), s.clock)
	if err := logWriter.Metadata(job); err != nil {
		return err
	}
	return logWriter.Status(VirtualQueue, nil)
}

func (s *Scheduler) writeScript(job *Job, cc ClusterConfig) error {
	script, err := s.CreateJobScript(job, cc)
	if err != nil {
		return err
	}
	path := job.ScriptPath()
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return errors.Wrapf(err, "could not write job script %s", path)
	}
	// WriteFile is subject to the umask.
	if err := os.Chmod(path, 0o755); err != nil {
		return errors.Wrapf(err, "could not make job script %s executable", path)
	}
	return nil
}
