package repository

import (
	"fmt"

	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
)

// ErrNotFound is returned whenever a cluster, config or job does not exist.
type ErrNotFound struct {
	Type  string // e.g. "cluster" or "job"
	Value string
}

func (err *ErrNotFound) Error() string {
	return fmt.Sprintf("%s %q does not exist", err.Type, err.Value)
}

// ErrAlreadyExists is returned when creating a resource whose name is taken.
type ErrAlreadyExists struct {
	Type  string
	Value string
}

func (err *ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s %q already exists", err.Type, err.Value)
}

// ErrInvalidTransition is returned when a status update would move a job backwards or out of a terminal state.
type ErrInvalidTransition struct {
	JobId int64
	From  jobs.Status
	To    jobs.Status
}

func (err *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("job %d cannot move from %s to %s", err.JobId, err.From, err.To)
}
