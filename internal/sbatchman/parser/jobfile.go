package parser

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/armadaproject/sbatchman/internal/common/config"
	"github.com/armadaproject/sbatchman/internal/sbatchman/expression"
	"github.com/armadaproject/sbatchman/internal/sbatchman/templating"
	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

const jobsKey = "jobs"

type jobEntry struct {
	Name        string    `yaml:"name" validate:"required"`
	Config      string    `yaml:"config" validate:"required"`
	Command     string    `yaml:"command" validate:"required"`
	Preprocess  string    `yaml:"preprocess"`
	Postprocess string    `yaml:"postprocess"`
	Variables   yaml.Node `yaml:"variables" validate:"-"`
}

// JobDefinition is one entry of a jobs file. Variables are those declared on the entry itself.
type JobDefinition struct {
	Template  templating.JobTemplate
	Variables variables.Set
}

type JobFile struct {
	Path string
	// Variables declared in the file and everything it includes.
	Variables        variables.Set
	ExpressionHeader string
	Jobs             []JobDefinition
}

// ParseJobFile reads a jobs file:
//
//	include: [<file>, ...]
//	expression_header: |
//	  <name> = <expression>
//	variables: {...}
//	jobs:
//	  - name: <template>
//	    config: <template>
//	    command: <template>
//	    preprocess: <template>
//	    postprocess: <template>
//	    variables: {...}
func ParseJobFile(path string, logger *log.Entry) (*JobFile, error) {
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
	jobsNode := lookup(root, jobsKey)
	if jobsNode == nil {
		return nil, &ErrMissingKey{Key: jobsKey, File: path}
	}
	if jobsNode.Kind != yaml.SequenceNode {
		return nil, errors.WithMessage(wrongType(jobsNode, "sequence of jobs"), path)
	}

	file := &JobFile{Path: path, Variables: vars, ExpressionHeader: header}
	for i, node := range jobsNode.Content {
		definition, err := parseJob(node)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s: job %d", path, i+1)
		}
		file.Jobs = append(file.Jobs, definition)
	}
	return file, nil
}

func parseJob(node *yaml.Node) (JobDefinition, error) {
	var entry jobEntry
	if err := resolve(node).Decode(&entry); err != nil {
		return JobDefinition{}, errors.WithStack(err)
	}
	if err := config.Validate(entry); err != nil {
		return JobDefinition{}, err
	}
	definition := JobDefinition{
		Template: templating.JobTemplate{
			Name:        entry.Name,
			Config:      entry.Config,
			Command:     entry.Command,
			Preprocess:  entry.Preprocess,
			Postprocess: entry.Postprocess,
		},
	}
	if entry.Variables.Kind != 0 {
		vars, err := ParseVariables(&entry.Variables)
		if err != nil {
			return JobDefinition{}, err
		}
		definition.Variables = vars
	}
	return definition, nil
}

// Materialize expands every job of the file for cluster. Variables declared on a job override file variables
// of the same name.
func (f *JobFile) Materialize(cluster string, evaluator expression.Evaluator, logger *log.Entry) ([]templating.MaterializedJob, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithField("cluster", cluster)
	engine := templating.NewEngine(expression.NewSpans(expression.DefaultToken, f.ExpressionHeader, evaluator, logger), logger)

	var out []templating.MaterializedJob
	for _, job := range f.Jobs {
		materialized, err := engine.Materialize(job.Template, cluster, f.Variables.Merge(job.Variables))
		if err != nil {
			return nil, err
		}
		logger.WithField("job", job.Template.Name).Debugf("expanded into %d jobs", len(materialized))
		out = append(out, materialized...)
	}
	return out, nil
}
