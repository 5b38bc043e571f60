package parser

import (
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/armadaproject/sbatchman/internal/common/config"
	"github.com/armadaproject/sbatchman/internal/common/util"
	"github.com/armadaproject/sbatchman/internal/sbatchman/expression"
	"github.com/armadaproject/sbatchman/internal/sbatchman/jobs"
	"github.com/armadaproject/sbatchman/internal/sbatchman/templating"
	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

const clustersKey = "clusters"

type clusterEntry struct {
	Scheduler string `yaml:"scheduler" validate:"required"`
	// Nil means no limit.
	MaxJobs     *int           `yaml:"max_jobs" validate:"omitempty,gte=0"`
	DefaultConf map[string]any `yaml:"default_conf"`
	Env         map[string]any `yaml:"env"`
	Configs     []configEntry  `yaml:"configs" validate:"dive"`
}

type configEntry struct {
	Name   string         `yaml:"name" validate:"required"`
	Params map[string]any `yaml:"params"`
	Env    map[string]any `yaml:"env"`
}

// ClusterDefinition is a cluster and the configs declared for it, ready to be stored.
type ClusterDefinition struct {
	Cluster *jobs.Cluster
	Configs []*jobs.Config
}

// ParseClusterFile reads a cluster file:
//
//	clusters:
//	  <name>:
//	    scheduler: local | slurm | pbs
//	    max_jobs: <n>
//	    default_conf: {<flag>: <value>}
//	    env: {<name>: <value>}
//	    configs:
//	      - name: <name template>
//	        params: {<flag>: <value>}
//	        env: {<name>: <value>}
//
// Config params are merged over default_conf and config env over the cluster env. Every flag must be one the
// cluster's scheduler accepts. Config names and string params and env values are templates expanded for the
// cluster, so one entry yields one config per combination of the variables it references.
func ParseClusterFile(path string, evaluator expression.Evaluator, logger *log.Entry) ([]ClusterDefinition, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	root, err := loadDocument(path, logger)
	if err != nil {
		return nil, err
	}
	vars, err := includeVariables(path, root, logger)
	if err != nil {
		return nil, err
	}
	header, err := lookupString(root, expressionHeaderKey)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}
	clustersNode := lookup(root, clustersKey)
	if clustersNode == nil {
		return nil, &ErrMissingKey{Key: clustersKey, File: path}
	}
	entries, err := pairs(clustersNode)
	if err != nil {
		return nil, errors.WithMessage(err, path)
	}

	var definitions []ClusterDefinition
	for _, entry := range entries {
		clusterLogger := logger.WithField("cluster", entry.key)
		engine := templating.NewEngine(expression.NewSpans(expression.DefaultToken, header, evaluator, clusterLogger), clusterLogger)
		definition, err := parseCluster(entry.key, entry.value, engine, vars)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s: cluster %s", path, entry.key)
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

func parseCluster(name string, node *yaml.Node, engine *templating.Engine, vars variables.Set) (ClusterDefinition, error) {
	var entry clusterEntry
	if err := node.Decode(&entry); err != nil {
		return ClusterDefinition{}, errors.WithStack(err)
	}
	if err := config.Validate(entry); err != nil {
		return ClusterDefinition{}, err
	}
	kind, err := jobs.ParseSchedulerKind(entry.Scheduler)
	if err != nil {
		return ClusterDefinition{}, err
	}

	definition := ClusterDefinition{
		Cluster: &jobs.Cluster{Name: name, Scheduler: kind, MaxJobs: entry.MaxJobs},
	}
	for _, c := range entry.Configs {
		flags := util.MergeMaps(entry.DefaultConf, c.Params)
		for _, flag := range sortedKeys(flags) {
			if !kind.AllowsFlag(flag) {
				return ClusterDefinition{}, &ErrParameterNotAllowed{Parameter: flag, Scheduler: kind.String(), Config: c.Name}
			}
		}
		configs, err := expandConfig(c.Name, flags, util.MergeMaps(entry.Env, c.Env), name, engine, vars)
		if err != nil {
			return ClusterDefinition{}, errors.WithMessagef(err, "config %s", c.Name)
		}
		definition.Configs = append(definition.Configs, configs...)
	}
	return definition, nil
}

const (
	nameText   = "name"
	flagPrefix = "flag:"
	envPrefix  = "env:"
)

// expandConfig expands the templates of one config entry with the same binding, yielding a config per binding.
func expandConfig(
	name string,
	flags map[string]any,
	env map[string]any,
	cluster string,
	engine *templating.Engine,
	vars variables.Set,
) ([]*jobs.Config, error) {
	texts := map[string]string{nameText: name}
	addTexts(texts, flagPrefix, flags)
	addTexts(texts, envPrefix, env)

	expanded, err := engine.ExpandAll(texts, cluster, vars)
	if err != nil {
		return nil, err
	}
	configs := make([]*jobs.Config, 0, len(expanded))
	for _, result := range expanded {
		configs = append(configs, &jobs.Config{
			Name:  result[nameText],
			Flags: applyTexts(flags, flagPrefix, result),
			Env:   applyTexts(env, envPrefix, result),
		})
	}
	return configs, nil
}

func addTexts(texts map[string]string, prefix string, values map[string]any) {
	for k, v := range values {
		if s, ok := v.(string); ok {
			texts[prefix+k] = s
		}
	}
}

func applyTexts(values map[string]any, prefix string, expanded map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if s, ok := expanded[prefix+k]; ok {
			out[k] = s
			continue
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func (d ClusterDefinition) String() string {
	return fmt.Sprintf("%s (%s, %d configs)", d.Cluster.Name, d.Cluster.Scheduler, len(d.Configs))
}
