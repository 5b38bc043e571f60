package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func launchLocalJob(t *testing.T, command string, flags map[string]any) (*Job, *Reconstruction) {
	t.Helper()
	requireCommands(t, "bash", "timeout", "date")
	dir := t.TempDir()
	job := testJob(filepath.Join(dir, "jobs", "1"))
	job.Command = command

	err := testScheduler(LocalScheduler, dir).LaunchJob(context.Background(), job, testClusterConfig(LocalKind, flags, nil))
	require.NoError(t, err)

	r, err := Reconstruct(job.LogPath())
	require.NoError(t, err)
	return job, r
}

func statusUpdates(r *Reconstruction) []Status {
	statuses := make([]Status, 0, len(r.Timeline))
	for _, entry := range r.Timeline {
		var s Status
		_ = json.Unmarshal(entry.Data, &s)
		statuses = append(statuses, s)
	}
	return statuses
}

func TestLocalLaunch_Completed(t *testing.T) {
	job, r := launchLocalJob(t, "echo 'Hello World'", nil)

	assert.Equal(t, Completed, job.Status)
	assert.NotNil(t, job.EndTime)

	info, err := os.Stat(job.ScriptPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	stdout, err := os.ReadFile(job.StdoutPath())
	require.NoError(t, err)
	assert.Equal(t, "Hello World\n", string(stdout))

	entries, err := ReadLog(job.LogPath())
	require.NoError(t, err)
	assert.Equal(t, MetadataEntry, entries[0].Type)
	assert.Equal(t, []Status{Created, Running, Completed}, statusUpdates(r))
	assert.Equal(t, Completed, r.Job.Status)
	require.NotNil(t, r.ExitCode)
	assert.Equal(t, 0, *r.ExitCode)
	assert.NotNil(t, r.Pid)
}

func TestLocalLaunch_SpawnFailure(t *testing.T) {
	dir := t.TempDir()
	job := testJob(filepath.Join(dir, "jobs", "1"))
	job.Command = "echo unreachable"
	t.Setenv("PATH", "")

	err := testScheduler(LocalScheduler, dir).LaunchJob(context.Background(), job, testClusterConfig(LocalKind, nil, nil))
	var spawnErr *ErrSpawn
	require.ErrorAs(t, err, &spawnErr)
	assert.Contains(t, spawnErr.Command, "bash")
	assert.Equal(t, FailedSubmission, job.Status)
	assert.Nil(t, job.EndTime)

	r, err := Reconstruct(job.LogPath())
	require.NoError(t, err)
	assert.Equal(t, []Status{Created, FailedSubmission}, statusUpdates(r))
	assert.Equal(t, FailedSubmission, r.Job.Status)
	assert.Nil(t, r.ExitCode)
	assert.Nil(t, r.Pid)
}

func TestLocalLaunch_Failed(t *testing.T) {
	job, r := launchLocalJob(t, "echo oops >&2; (exit 7)", nil)

	assert.Equal(t, Failed, job.Status)
	assert.Equal(t, []Status{Created, Running, Failed}, statusUpdates(r))
	require.NotNil(t, r.ExitCode)
	assert.Equal(t, 7, *r.ExitCode)

	stderr, err := os.ReadFile(job.StderrPath())
	require.NoError(t, err)
	assert.Equal(t, "oops\n", string(stderr))
}

func TestLocalLaunch_FailingCommandStillRunsPostprocess(t *testing.T) {
	requireCommands(t, "bash", "date")
	dir := t.TempDir()
	job := testJob(filepath.Join(dir, "job"))
	job.Preprocess = "echo pre"
	job.Command = "false"
	job.Postprocess = "echo post"

	require.NoError(t, testScheduler(LocalScheduler, dir).LaunchJob(context.Background(), job, testClusterConfig(LocalKind, nil, nil)))
	assert.Equal(t, Failed, job.Status)
	stdout, err := os.ReadFile(job.StdoutPath())
	require.NoError(t, err)
	assert.Equal(t, "pre\npost\n", string(stdout))
}

func TestLocalLaunch_Timeout(t *testing.T) {
	job, r := launchLocalJob(t, "sleep 3", map[string]any{"time": "00:00:01"})

	assert.Equal(t, Timeout, job.Status)
	assert.Equal(t, []Status{Created, Running, Timeout}, statusUpdates(r))
	require.NotNil(t, r.ProcessExitCode)
	assert.Equal(t, TimeoutExitCode, *r.ProcessExitCode)
	// The script was killed before it could record its own exit status.
	assert.Nil(t, r.ExitCode)
}

func TestLocalLaunch_TimeLimitNotReached(t *testing.T) {
	job, _ := launchLocalJob(t, "true", map[string]any{"time": "0-00:01:00"})
	assert.Equal(t, Completed, job.Status)

	entries, err := ReadLog(job.LogPath())
	require.NoError(t, err)
	var limits []string
	for _, e := range entries {
		if e.Type == VariableEntry {
			limits = append(limits, string(e.Data))
		}
	}
	assert.Equal(t, []string{`{"SBM_TIME_LIMIT":"60"}`}, limits)
}

func TestLocalLaunch_InvalidTimeLimit(t *testing.T) {
	dir := t.TempDir()
	job := testJob(filepath.Join(dir, "job"))
	err := testScheduler(LocalScheduler, dir).LaunchJob(context.Background(), job, testClusterConfig(LocalKind, map[string]any{"time": "soon"}, nil))
	var invalid *ErrInvalidTimeFormat
	assert.ErrorAs(t, err, &invalid)
}

func TestLocalLaunch_WorkingDirectory(t *testing.T) {
	job, _ := launchLocalJob(t, "pwd", nil)
	stdout, err := os.ReadFile(job.StdoutPath())
	require.NoError(t, err)
	base := filepath.Dir(filepath.Dir(job.Directory))
	resolved, err := filepath.EvalSymlinks(base)
	require.NoError(t, err)
	assert.Contains(t, []string{base + "\n", resolved + "\n"}, string(stdout))
}

func TestStatusFromExitCode(t *testing.T) {
	tests := map[string]struct {
		code     int
		limited  bool
		expected Status
	}{
		"success":                  {0, false, Completed},
		"success under limit":      {0, true, Completed},
		"failure":                  {1, false, Failed},
		"timeout sentinel":         {124, true, Timeout},
		"124 without a time limit": {124, false, Failed},
		"no exit code":             {-1, false, FailedSubmission},
		"no exit code under limit": {-1, true, FailedSubmission},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, statusFromExitCode(tc.code, tc.limited))
		})
	}
}

func TestVirtualLaunch_RecordsVirtualQueue(t *testing.T) {
	dir := t.TempDir()
	job := testJob(filepath.Join(dir, "job"))
	require.NoError(t, testScheduler(VirtualScheduler, dir).LaunchJob(context.Background(), job, testClusterConfig(LocalKind, nil, nil)))
	assert.Equal(t, VirtualQueue, job.Status)

	r, err := Reconstruct(job.LogPath())
	require.NoError(t, err)
	assert.Equal(t, VirtualQueue, r.Job.Status)
	_, err = os.Stat(job.ScriptPath())
	assert.True(t, os.IsNotExist(err))
}

func TestSlurmLaunch_WritesScriptWithoutSubmitting(t *testing.T) {
	dir := t.TempDir()
	job := testJob(filepath.Join(dir, "job"))
	s := testScheduler(SlurmScheduler, dir)
	require.NoError(t, s.LaunchJob(context.Background(), job, testClusterConfig(SlurmKind, map[string]any{"partition": "debug"}, nil)))
	assert.Equal(t, Created, job.Status)

	script, err := os.ReadFile(job.ScriptPath())
	require.NoError(t, err)
	assert.Contains(t, string(script), "#SBATCH --partition=debug")

	n, err := s.NumberOfEnqueuedJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
