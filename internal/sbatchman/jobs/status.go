package jobs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of a job. Values are persisted as integers.
type Status int

const (
	// Created jobs have a record but have not been handed to a scheduler.
	Created Status = iota
	// VirtualQueue jobs were held back because the cluster was at its job limit.
	VirtualQueue
	// Queued jobs were accepted by an external scheduler but are not running yet.
	Queued
	Running
	Completed
	Failed
	Timeout
	// FailedSubmission jobs never produced an exit code.
	FailedSubmission
)

var statusNames = map[Status]string{
	Created:          "Created",
	VirtualQueue:     "VirtualQueue",
	Queued:           "Queued",
	Running:          "Running",
	Completed:        "Completed",
	Failed:           "Failed",
	Timeout:          "Timeout",
	FailedSubmission: "FailedSubmission",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus accepts a status name in any case.
func ParseStatus(name string) (Status, error) {
	for status, statusName := range statusNames {
		if strings.EqualFold(name, statusName) {
			return status, nil
		}
	}
	return 0, errors.Errorf("unknown job status %q", name)
}

func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Failed, Timeout, FailedSubmission:
		return true
	}
	return false
}

// CanTransitionTo reports whether a job in state s may move to next.
// Transitions only move forward and nothing leaves a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	return !s.IsTerminal() && next > s
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, errors.Errorf("unknown job status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	status, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// SchedulerKind is the scheduler a cluster submits through. Values are persisted as integers.
type SchedulerKind int

const (
	LocalKind SchedulerKind = iota
	SlurmKind
	PbsKind
)

func (k SchedulerKind) String() string {
	switch k {
	case LocalKind:
		return "local"
	case SlurmKind:
		return "slurm"
	case PbsKind:
		return "pbs"
	default:
		return fmt.Sprintf("SchedulerKind(%d)", int(k))
	}
}

func ParseSchedulerKind(name string) (SchedulerKind, error) {
	switch strings.ToLower(name) {
	case "local":
		return LocalKind, nil
	case "slurm":
		return SlurmKind, nil
	case "pbs":
		return PbsKind, nil
	default:
		return 0, &ErrUnknownScheduler{Name: name}
	}
}
