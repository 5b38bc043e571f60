package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/armadaproject/sbatchman/internal/common/pointer"
	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
)

// DatabaseFileName is the name of the database inside the workspace directory.
const DatabaseFileName = "sbatchman.db"

// Writes are retried while another sbatchman process holds the database lock.
const (
	busyRetryAttempts = 5
	busyRetryDelay    = 50 * time.Millisecond
)

var (
	clustersTable = goqu.T("clusters")
	configsTable  = goqu.T("configs")
	jobsTable     = goqu.T("jobs")

	dialect = goqu.Dialect("sqlite3")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clusters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cluster_name TEXT NOT NULL UNIQUE,
		scheduler INTEGER NOT NULL,
		max_jobs INTEGER)`,
	`CREATE TABLE IF NOT EXISTS configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		config_name TEXT NOT NULL,
		cluster_id INTEGER NOT NULL REFERENCES clusters(id),
		flags TEXT NOT NULL,
		env TEXT NOT NULL,
		UNIQUE(cluster_id, config_name))`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_name TEXT NOT NULL,
		config_id INTEGER NOT NULL REFERENCES configs(id),
		submit_time INTEGER NOT NULL,
		directory TEXT NOT NULL,
		command TEXT NOT NULL,
		status INTEGER NOT NULL,
		job_id TEXT,
		end_time INTEGER,
		preprocess TEXT,
		postprocess TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		variables TEXT NOT NULL)`,
}

// SQLiteRepository stores everything in a single SQLite file.
// Writes are serialised; times are stored as unix seconds.
type SQLiteRepository struct {
	db     *sql.DB
	lock   sync.RWMutex
	clock  util.Clock
	logger *log.Entry
}

// NewSQLiteRepository opens (creating if needed) the database at path and makes sure its tables exist.
// The returned function closes the database.
func NewSQLiteRepository(path string, clock util.Clock, logger *log.Entry) (*SQLiteRepository, func(), error) {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, func() {}, errors.Wrapf(err, "could not create directory for database %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, func() {}, errors.Wrapf(err, "error opening sqlite database %s", path)
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warnf("error closing database: %v", err)
		}
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		cleanup()
		return nil, func() {}, errors.Wrap(err, "error enabling write-ahead logging")
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			cleanup()
			return nil, func() {}, errors.Wrap(err, "error creating database schema")
		}
	}
	logger.Debugf("connected to database at %s", path)
	return &SQLiteRepository{db: db, clock: clock, logger: logger}, cleanup, nil
}

func (r *SQLiteRepository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database health check failed")
	}
	return nil
}

// sqlBuilder is implemented by the goqu insert and update datasets.
type sqlBuilder interface {
	ToSQL() (string, []interface{}, error)
}

func (r *SQLiteRepository) exec(ctx context.Context, ds sqlBuilder) (sql.Result, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var result sql.Result
	err = retry.Do(
		func() error {
			var execErr error
			result, execErr = r.db.ExecContext(ctx, query, args...)
			return execErr
		},
		retry.Context(ctx),
		retry.Attempts(busyRetryAttempts),
		retry.Delay(busyRetryDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
	)
	return result, errors.WithStack(err)
}

// isBusy reports whether err means the database is locked by another connection.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (r *SQLiteRepository) CreateClusterWithConfigs(ctx context.Context, cluster *jobs.Cluster, configs []*jobs.Config) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	existing, err := r.getClusterByName(ctx, cluster.Name)
	if err != nil && !isNotFound(err) {
		return err
	}
	if existing != nil {
		return &ErrAlreadyExists{Type: "cluster", Value: cluster.Name}
	}

	var maxJobs interface{}
	if cluster.MaxJobs != nil {
		maxJobs = *cluster.MaxJobs
	}
	result, err := r.exec(ctx, dialect.Insert(clustersTable).Prepared(true).Rows(goqu.Record{
		"cluster_name": cluster.Name,
		"scheduler":    int(cluster.Scheduler),
		"max_jobs":     maxJobs,
	}))
	if err != nil {
		return errors.WithMessagef(err, "error creating cluster %s", cluster.Name)
	}
	if cluster.Id, err = result.LastInsertId(); err != nil {
		return errors.WithStack(err)
	}

	for _, config := range configs {
		config.ClusterId = cluster.Id
		if err := r.insertConfig(ctx, config); err != nil {
			r.logger.WithField("cluster", cluster.Name).WithField("config", config.Name).Warnf("skipping config: %v", err)
		}
	}
	return nil
}

func (r *SQLiteRepository) insertConfig(ctx context.Context, config *jobs.Config) error {
	flags, err := marshalMap(config.Flags)
	if err != nil {
		return err
	}
	env, err := marshalMap(config.Env)
	if err != nil {
		return err
	}
	result, err := r.exec(ctx, dialect.Insert(configsTable).Prepared(true).Rows(goqu.Record{
		"config_name": config.Name,
		"cluster_id":  config.ClusterId,
		"flags":       flags,
		"env":         env,
	}))
	if err != nil {
		return err
	}
	config.Id, err = result.LastInsertId()
	return errors.WithStack(err)
}

func (r *SQLiteRepository) ListClusters(ctx context.Context) ([]*jobs.Cluster, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.queryClusters(ctx, dialect.From(clustersTable).Order(goqu.C("id").Asc()))
}

func (r *SQLiteRepository) GetClusterByName(ctx context.Context, name string) (*jobs.Cluster, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.getClusterByName(ctx, name)
}

func (r *SQLiteRepository) getClusterByName(ctx context.Context, name string) (*jobs.Cluster, error) {
	clusters, err := r.queryClusters(ctx, dialect.From(clustersTable).Where(goqu.C("cluster_name").Eq(name)))
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, clusterNotFound(name)
	}
	return clusters[0], nil
}

func (r *SQLiteRepository) queryClusters(ctx context.Context, ds *goqu.SelectDataset) ([]*jobs.Cluster, error) {
	query, args, err := ds.Select("id", "cluster_name", "scheduler", "max_jobs").Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var clusters []*jobs.Cluster
	for rows.Next() {
		var (
			cluster   jobs.Cluster
			scheduler int
			maxJobs   sql.NullInt64
		)
		if err := rows.Scan(&cluster.Id, &cluster.Name, &scheduler, &maxJobs); err != nil {
			return nil, errors.WithStack(err)
		}
		cluster.Scheduler = jobs.SchedulerKind(scheduler)
		if maxJobs.Valid {
			cluster.MaxJobs = pointer.Pointer(int(maxJobs.Int64))
		}
		clusters = append(clusters, &cluster)
	}
	return clusters, errors.WithStack(rows.Err())
}

func (r *SQLiteRepository) GetConfigsByCluster(ctx context.Context, clusterId int64) ([]*jobs.Config, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	query, args, err := dialect.From(configsTable).
		Select("id", "config_name", "cluster_id", "flags", "env").
		Where(goqu.C("cluster_id").Eq(clusterId)).
		Order(goqu.C("id").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var configs []*jobs.Config
	for rows.Next() {
		var (
			config     jobs.Config
			flags, env string
		)
		if err := rows.Scan(&config.Id, &config.Name, &config.ClusterId, &flags, &env); err != nil {
			return nil, errors.WithStack(err)
		}
		if config.Flags, err = unmarshalMap(flags); err != nil {
			return nil, err
		}
		if config.Env, err = unmarshalMap(env); err != nil {
			return nil, err
		}
		configs = append(configs, &config)
	}
	return configs, errors.WithStack(rows.Err())
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, job *jobs.Job) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	variables, err := json.Marshal(job.Variables)
	if err != nil {
		return errors.WithStack(err)
	}
	var endTime interface{}
	if job.EndTime != nil {
		endTime = job.EndTime.Unix()
	}
	result, err := r.exec(ctx, dialect.Insert(jobsTable).Prepared(true).Rows(goqu.Record{
		"job_name":    job.Name,
		"config_id":   job.ConfigId,
		"submit_time": job.SubmitTime.Unix(),
		"directory":   job.Directory,
		"command":     job.Command,
		"status":      int(job.Status),
		"job_id":      nullString(job.JobId),
		"end_time":    endTime,
		"preprocess":  nullString(job.Preprocess),
		"postprocess": nullString(job.Postprocess),
		"archived":    job.Archived,
		"variables":   string(variables),
	}))
	if err != nil {
		return errors.WithMessagef(err, "error creating job %s", job.Name)
	}
	job.Id, err = result.LastInsertId()
	return errors.WithStack(err)
}

func (r *SQLiteRepository) UpdateJobPath(ctx context.Context, id int64, directory string) error {
	return r.updateJob(ctx, id, goqu.Record{"directory": directory})
}

// UpdateJobStatus also stamps end_time when the status is terminal. Statuses only move forward and a terminal
// status is final; anything else fails with ErrInvalidTransition.
func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id int64, status jobs.Status) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	current, err := r.jobStatus(ctx, id)
	if err != nil {
		return err
	}
	changed, err := checkTransition(id, current, status)
	if err != nil || !changed {
		return err
	}
	record := goqu.Record{"status": int(status)}
	if status.IsTerminal() {
		record["end_time"] = r.clock.Now().Unix()
	}
	return r.updateJobLocked(ctx, id, record)
}

func (r *SQLiteRepository) jobStatus(ctx context.Context, id int64) (jobs.Status, error) {
	query, args, err := dialect.From(jobsTable).Select("status").Where(goqu.C("id").Eq(id)).Prepared(true).ToSQL()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var status int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, jobNotFound(id)
		}
		return 0, errors.WithStack(err)
	}
	return jobs.Status(status), nil
}

func (r *SQLiteRepository) updateJob(ctx context.Context, id int64, record goqu.Record) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.updateJobLocked(ctx, id, record)
}

func (r *SQLiteRepository) updateJobLocked(ctx context.Context, id int64, record goqu.Record) error {
	result, err := r.exec(ctx, dialect.Update(jobsTable).Prepared(true).Set(record).Where(goqu.C("id").Eq(id)))
	if err != nil {
		return errors.WithMessagef(err, "error updating job %d", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return jobNotFound(id)
	}
	return nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	summaries, err := r.queryJobs(ctx, goqu.I("j.id").Eq(id))
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, jobNotFound(id)
	}
	return summaries[0].Job, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, filter JobFilter) ([]*JobSummary, error) {
	var conditions []goqu.Expression
	if filter.Cluster != "" {
		conditions = append(conditions, goqu.I("cl.cluster_name").Eq(filter.Cluster))
	}
	if filter.Status != nil {
		conditions = append(conditions, goqu.I("j.status").Eq(int(*filter.Status)))
	}
	return r.queryJobs(ctx, conditions...)
}

func (r *SQLiteRepository) queryJobs(ctx context.Context, conditions ...goqu.Expression) ([]*JobSummary, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ds := dialect.From(jobsTable.As("j")).
		InnerJoin(configsTable.As("cf"), goqu.On(goqu.I("cf.id").Eq(goqu.I("j.config_id")))).
		InnerJoin(clustersTable.As("cl"), goqu.On(goqu.I("cl.id").Eq(goqu.I("cf.cluster_id")))).
		Select(
			goqu.I("j.id"),
			goqu.I("j.job_name"),
			goqu.I("j.config_id"),
			goqu.I("j.submit_time"),
			goqu.I("j.directory"),
			goqu.I("j.command"),
			goqu.I("j.status"),
			goqu.I("j.job_id"),
			goqu.I("j.end_time"),
			goqu.I("j.preprocess"),
			goqu.I("j.postprocess"),
			goqu.I("j.archived"),
			goqu.I("j.variables"),
			goqu.I("cl.cluster_name"),
			goqu.I("cf.config_name"),
		).
		Order(goqu.I("j.id").Asc())
	if len(conditions) > 0 {
		ds = ds.Where(goqu.And(conditions...))
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var summaries []*JobSummary
	for rows.Next() {
		var (
			job                            jobs.Job
			summary                        JobSummary
			submitTime                     int64
			status                         int
			jobId, preprocess, postprocess sql.NullString
			endTime                        sql.NullInt64
			variables                      string
		)
		err := rows.Scan(
			&job.Id, &job.Name, &job.ConfigId, &submitTime, &job.Directory, &job.Command, &status,
			&jobId, &endTime, &preprocess, &postprocess, &job.Archived, &variables,
			&summary.ClusterName, &summary.ConfigName,
		)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		job.SubmitTime = time.Unix(submitTime, 0)
		job.Status = jobs.Status(status)
		job.JobId = jobId.String
		job.Preprocess = preprocess.String
		job.Postprocess = postprocess.String
		if endTime.Valid {
			job.EndTime = pointer.Time(time.Unix(endTime.Int64, 0))
		}
		if err := json.Unmarshal([]byte(variables), &job.Variables); err != nil {
			return nil, errors.Wrapf(err, "error decoding variables of job %d", job.Id)
		}
		summary.Job = &job
		summaries = append(summaries, &summary)
	}
	return summaries, errors.WithStack(rows.Err())
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	return string(b), errors.WithStack(err)
}

func unmarshalMap(s string) (map[string]any, error) {
	m := map[string]any{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, errors.WithStack(err)
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isNotFound(err error) bool {
	var notFound *ErrNotFound
	return errors.As(err, &notFound)
}
