package jobs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/armadaproject/sbatchman/internal/common/util"
)

// TimeoutExitCode is what timeout(1) exits with when it had to kill the command.
const TimeoutExitCode = 124

// TimeLimitVariable is logged with the enforced limit in seconds when a job runs under timeout(1).
const TimeLimitVariable = "SBM_TIME_LIMIT"

// launchLocal drives a job through Created, Running and a terminal status:
//
//	Completed        exit status 0
//	Timeout          exit status 124 while running under a time limit
//	Failed           any other exit status
//	FailedSubmission no exit status, e.g. killed by a signal
func (s *Scheduler) launchLocal(ctx context.Context, job *Job, cc ClusterConfig) error {
	if err := job.PrepareDirectory(); err != nil {
		return err
	}
	logWriter := NewLogWriter(job.LogPath(), s.clock)
	if err := logWriter.Metadata(job); err != nil {
		return err
	}
	if err := s.writeScript(job, cc); err != nil {
		return err
	}
	job.Status = Created
	if err := logWriter.Status(Created, nil); err != nil {
		return err
	}

	var flags map[string]any
	if cc.Config != nil {
		flags = cc.Config.Flags
	}
	localFlags, err := DecodeLocalFlags(flags)
	if err != nil {
		return err
	}
	scriptPath, err := filepath.Abs(job.ScriptPath())
	if err != nil {
		return errors.WithStack(err)
	}
	limited := localFlags.Time != ""
	var cmd *exec.Cmd
	if limited {
		seconds, err := ParseTimeToSeconds(localFlags.Time)
		if err != nil {
			return err
		}
		limit := strconv.FormatUint(seconds, 10)
		if err := logWriter.Write(VariableEntry, map[string]string{TimeLimitVariable: limit}, nil); err != nil {
			return err
		}
		cmd = exec.CommandContext(ctx, "timeout", limit, "bash", scriptPath)
	} else {
		cmd = exec.CommandContext(ctx, "bash", scriptPath)
	}

	stdout, err := os.Create(job.StdoutPath())
	if err != nil {
		return errors.Wrap(err, "could not create stdout log")
	}
	defer util.CloseResource("stdout log", stdout)
	stderr, err := os.Create(job.StderrPath())
	if err != nil {
		return errors.Wrap(err, "could not create stderr log")
	}
	defer util.CloseResource("stderr log", stderr)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger := s.logger.WithField("job", job.Id)
	if err := cmd.Start(); err != nil {
		s.fail(logWriter, job, nil)
		return &ErrSpawn{Command: cmd.String(), Cause: err}
	}
	pid := cmd.Process.Pid
	job.SubmitTime = s.clock.Now()
	job.Status = Running
	if err := logWriter.Status(Running, nil); err != nil {
		logger.WithError(err).Warn("could not record running status")
	}
	logger.WithField("pid", pid).Debug("job started")

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.fail(logWriter, job, map[string]any{"pid": pid})
			return &ErrWait{Pid: pid, Cause: err}
		}
		exitCode = exitErr.ExitCode()
	}

	status := statusFromExitCode(exitCode, limited)
	end := s.clock.Now()
	job.EndTime = &end
	job.Status = status
	logger.WithField("exit_code", exitCode).Debugf("job finished as %s", status)
	return logWriter.Status(status, map[string]any{"pid": pid, "exit_code": exitCode})
}

func statusFromExitCode(code int, limited bool) Status {
	switch {
	case code < 0:
		return FailedSubmission
	case limited && code == TimeoutExitCode:
		return Timeout
	case code == 0:
		return Completed
	default:
		return Failed
	}
}

// fail records FailedSubmission after the process could not be started or waited on.
func (s *Scheduler) fail(logWriter *LogWriter, job *Job, additional map[string]any) {
	job.Status = FailedSubmission
	if err := logWriter.Status(FailedSubmission, additional); err != nil {
		s.logger.WithError(err).WithField("job", job.Id).Warn("could not record failed submission")
	}
}
