package jobs

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	ScriptFileName = "job.sh"
	LogFileName    = "log.jsonb"
	StdoutFileName = "stdout.log"
	StderrFileName = "stderr.log"
)

type Cluster struct {
	Id        int64         `json:"id"`
	Name      string        `json:"cluster_name"`
	Scheduler SchedulerKind `json:"scheduler"`
	// MaxJobs caps the number of jobs submitted at once. Nil means no limit.
	MaxJobs *int `json:"max_jobs,omitempty"`
}

// Config is a named set of scheduler flags and environment variables belonging to one cluster.
type Config struct {
	Id        int64          `json:"id"`
	Name      string         `json:"config_name"`
	ClusterId int64          `json:"cluster_id"`
	Flags     map[string]any `json:"flags"`
	Env       map[string]any `json:"env"`
}

type ClusterConfig struct {
	Cluster *Cluster
	Config  *Config
}

// Job is one concrete command submitted through a config.
// Directory is assigned once the job has an id and does not change afterwards.
type Job struct {
	Id          int64             `json:"id"`
	Name        string            `json:"job_name"`
	ConfigId    int64             `json:"config_id"`
	SubmitTime  time.Time         `json:"submit_time"`
	Directory   string            `json:"directory"`
	Command     string            `json:"command"`
	Status      Status            `json:"status"`
	JobId       string            `json:"job_id,omitempty"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Preprocess  string            `json:"preprocess,omitempty"`
	Postprocess string            `json:"postprocess,omitempty"`
	Archived    bool              `json:"archived"`
	Variables   map[string]string `json:"variables"`
}

func (j *Job) ScriptPath() string { return filepath.Join(j.Directory, ScriptFileName) }

func (j *Job) LogPath() string { return filepath.Join(j.Directory, LogFileName) }

func (j *Job) StdoutPath() string { return filepath.Join(j.Directory, StdoutFileName) }

func (j *Job) StderrPath() string { return filepath.Join(j.Directory, StderrFileName) }

// PrepareDirectory creates the job directory and any missing parents.
func (j *Job) PrepareDirectory() error {
	if j.Directory == "" {
		return errors.Errorf("job %d has no directory", j.Id)
	}
	if err := os.MkdirAll(j.Directory, 0o755); err != nil {
		return errors.Wrapf(err, "could not prepare job directory %s", j.Directory)
	}
	return nil
}

// JobDirectory is where the job with the given id keeps its files below root.
func JobDirectory(root string, id int64) string {
	return filepath.Join(root, "jobs", strconv.FormatInt(id, 10))
}
