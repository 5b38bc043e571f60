package repository

import (
	"context"
	"sync"

	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/sbatchman/internal/common/pointer"
	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
)

const (
	clustersTableName = "clusters"
	configsTableName  = "configs"
	jobsTableName     = "jobs"

	idIndex      = "id"      // primary key
	nameIndex    = "name"    // clusters by name; configs by (cluster, name)
	clusterIndex = "cluster" // configs belonging to a cluster
)

// MemoryRepository keeps everything in a go-memdb database and is lost when the process exits.
// Objects stored in the database are never modified in place; updates insert a modified copy.
type MemoryRepository struct {
	db *memdb.MemDB
	// Serialises id allocation together with the insert that uses it.
	lock   sync.Mutex
	nextId map[string]int64
	clock  util.Clock
	logger *log.Entry
}

func NewMemoryRepository(clock util.Clock, logger *log.Entry) (*MemoryRepository, error) {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	db, err := memdb.NewMemDB(memorySchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemoryRepository{
		db:     db,
		nextId: map[string]int64{},
		clock:  clock,
		logger: logger,
	}, nil
}

func (r *MemoryRepository) HealthCheck(_ context.Context) error {
	return nil
}

func (r *MemoryRepository) allocateId(table string) int64 {
	r.nextId[table]++
	return r.nextId[table]
}

func (r *MemoryRepository) CreateClusterWithConfigs(_ context.Context, cluster *jobs.Cluster, configs []*jobs.Config) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(clustersTableName, nameIndex, cluster.Name)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return &ErrAlreadyExists{Type: "cluster", Value: cluster.Name}
	}
	cluster.Id = r.allocateId(clustersTableName)
	stored := *cluster
	if err := txn.Insert(clustersTableName, &stored); err != nil {
		return errors.WithStack(err)
	}

	for _, config := range configs {
		config.ClusterId = cluster.Id
		if err := r.insertConfig(txn, config); err != nil {
			r.logger.WithField("cluster", cluster.Name).WithField("config", config.Name).Warnf("skipping config: %v", err)
		}
	}
	txn.Commit()
	return nil
}

func (r *MemoryRepository) insertConfig(txn *memdb.Txn, config *jobs.Config) error {
	existing, err := txn.First(configsTableName, nameIndex, config.ClusterId, config.Name)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return &ErrAlreadyExists{Type: "config", Value: config.Name}
	}
	config.Id = r.allocateId(configsTableName)
	stored := *config
	stored.Flags = maps.Clone(config.Flags)
	stored.Env = maps.Clone(config.Env)
	return errors.WithStack(txn.Insert(configsTableName, &stored))
}

func (r *MemoryRepository) ListClusters(_ context.Context) ([]*jobs.Cluster, error) {
	txn := r.db.Txn(false)
	iter, err := txn.Get(clustersTableName, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var clusters []*jobs.Cluster
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		cluster := *obj.(*jobs.Cluster)
		clusters = append(clusters, &cluster)
	}
	slices.SortFunc(clusters, func(a, b *jobs.Cluster) bool { return a.Id < b.Id })
	return clusters, nil
}

func (r *MemoryRepository) GetClusterByName(_ context.Context, name string) (*jobs.Cluster, error) {
	obj, err := r.db.Txn(false).First(clustersTableName, nameIndex, name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, clusterNotFound(name)
	}
	cluster := *obj.(*jobs.Cluster)
	return &cluster, nil
}

func (r *MemoryRepository) GetConfigsByCluster(_ context.Context, clusterId int64) ([]*jobs.Config, error) {
	iter, err := r.db.Txn(false).Get(configsTableName, clusterIndex, clusterId)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var configs []*jobs.Config
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		config := *obj.(*jobs.Config)
		config.Flags = maps.Clone(config.Flags)
		config.Env = maps.Clone(config.Env)
		configs = append(configs, &config)
	}
	slices.SortFunc(configs, func(a, b *jobs.Config) bool { return a.Id < b.Id })
	return configs, nil
}

func (r *MemoryRepository) CreateJob(_ context.Context, job *jobs.Job) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	txn := r.db.Txn(true)
	defer txn.Abort()
	job.Id = r.allocateId(jobsTableName)
	if err := txn.Insert(jobsTableName, copyJob(job)); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (r *MemoryRepository) UpdateJobPath(_ context.Context, id int64, directory string) error {
	return r.updateJob(id, func(job *jobs.Job) error {
		job.Directory = directory
		return nil
	})
}

// UpdateJobStatus also stamps the end time when the status is terminal. Statuses only move forward and a
// terminal status is final.
func (r *MemoryRepository) UpdateJobStatus(_ context.Context, id int64, status jobs.Status) error {
	return r.updateJob(id, func(job *jobs.Job) error {
		changed, err := checkTransition(id, job.Status, status)
		if err != nil || !changed {
			return err
		}
		job.Status = status
		if status.IsTerminal() {
			job.EndTime = pointer.Time(r.clock.Now())
		}
		return nil
	})
}

func (r *MemoryRepository) updateJob(id int64, update func(job *jobs.Job) error) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	txn := r.db.Txn(true)
	defer txn.Abort()
	obj, err := txn.First(jobsTableName, idIndex, id)
	if err != nil {
		return errors.WithStack(err)
	}
	if obj == nil {
		return jobNotFound(id)
	}
	job := copyJob(obj.(*jobs.Job))
	if err := update(job); err != nil {
		return err
	}
	if err := txn.Insert(jobsTableName, job); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (r *MemoryRepository) GetJob(_ context.Context, id int64) (*jobs.Job, error) {
	obj, err := r.db.Txn(false).First(jobsTableName, idIndex, id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if obj == nil {
		return nil, jobNotFound(id)
	}
	return copyJob(obj.(*jobs.Job)), nil
}

func (r *MemoryRepository) ListJobs(_ context.Context, filter JobFilter) ([]*JobSummary, error) {
	txn := r.db.Txn(false)
	iter, err := txn.Get(jobsTableName, idIndex)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var summaries []*JobSummary
	for obj := iter.Next(); obj != nil; obj = iter.Next() {
		job := copyJob(obj.(*jobs.Job))
		summary := &JobSummary{Job: job}
		if config, err := txn.First(configsTableName, idIndex, job.ConfigId); err == nil && config != nil {
			summary.ConfigName = config.(*jobs.Config).Name
			if cluster, err := txn.First(clustersTableName, idIndex, config.(*jobs.Config).ClusterId); err == nil && cluster != nil {
				summary.ClusterName = cluster.(*jobs.Cluster).Name
			}
		}
		if filter.matches(summary) {
			summaries = append(summaries, summary)
		}
	}
	slices.SortFunc(summaries, func(a, b *JobSummary) bool { return a.Job.Id < b.Job.Id })
	return summaries, nil
}

func copyJob(job *jobs.Job) *jobs.Job {
	c := *job
	c.Variables = maps.Clone(job.Variables)
	if job.EndTime != nil {
		c.EndTime = pointer.Time(*job.EndTime)
	}
	return &c
}

func memorySchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			clustersTableName: {
				Name: clustersTableName,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "Id"},
					},
					nameIndex: {
						Name:    nameIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Name"},
					},
				},
			},
			configsTableName: {
				Name: configsTableName,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "Id"},
					},
					clusterIndex: {
						Name:    clusterIndex,
						Unique:  false,
						Indexer: &memdb.IntFieldIndex{Field: "ClusterId"},
					},
					nameIndex: {
						Name:   nameIndex,
						Unique: true,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.IntFieldIndex{Field: "ClusterId"},
								&memdb.StringFieldIndex{Field: "Name"},
							},
						},
					},
				},
			},
			jobsTableName: {
				Name: jobsTableName,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.IntFieldIndex{Field: "Id"},
					},
				},
			},
		},
	}
}
