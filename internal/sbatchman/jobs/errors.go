package jobs

import "fmt"

// ErrSpawn is returned when the job process could not be started.
type ErrSpawn struct {
	Command string
	Cause   error
}

func (err *ErrSpawn) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", err.Command, err.Cause)
}

func (err *ErrSpawn) Unwrap() error { return err.Cause }

// ErrWait is returned when the job process was started but waiting on it failed.
type ErrWait struct {
	Pid   int
	Cause error
}

func (err *ErrWait) Error() string {
	return fmt.Sprintf("failed to wait for process %d: %v", err.Pid, err.Cause)
}

func (err *ErrWait) Unwrap() error { return err.Cause }

type ErrInvalidTimeFormat struct {
	Value string
}

func (err *ErrInvalidTimeFormat) Error() string {
	return fmt.Sprintf("invalid time %q; expected HH:MM:SS or D-HH:MM:SS", err.Value)
}

// ErrConfigNotFound is returned when a job names a config its cluster does not have.
type ErrConfigNotFound struct {
	Config  string
	Cluster string
}

func (err *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config %q not found for cluster %q", err.Config, err.Cluster)
}

// ErrLaunch wraps the failure of a single job within a batch.
type ErrLaunch struct {
	JobId   int64
	JobName string
	Cause   error
}

func (err *ErrLaunch) Error() string {
	return fmt.Sprintf("failed to launch job %d (%s): %v", err.JobId, err.JobName, err.Cause)
}

func (err *ErrLaunch) Unwrap() error { return err.Cause }

type ErrUnknownScheduler struct {
	Name string
}

func (err *ErrUnknownScheduler) Error() string {
	return fmt.Sprintf("unknown scheduler %q; must be one of local, slurm, pbs", err.Name)
}
