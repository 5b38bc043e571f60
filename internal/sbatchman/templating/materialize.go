package templating

import (
	"github.com/pkg/errors"

	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

// JobTemplate is a job as declared in a jobs file, before expansion.
type JobTemplate struct {
	Name        string
	Config      string
	Command     string
	Preprocess  string
	Postprocess string
}

// texts are the fields whose references are enumerated.
func (t JobTemplate) texts() []string {
	var texts []string
	for _, text := range []string{t.Name, t.Config, t.Command, t.Preprocess, t.Postprocess} {
		if text != "" {
			texts = append(texts, text)
		}
	}
	return texts
}

// MaterializedJob is one concrete job produced from a template.
// Variables holds the binding the job was produced from.
type MaterializedJob struct {
	Name        string
	Config      string
	Command     string
	Preprocess  string
	Postprocess string
	Variables   map[string]string
}

// Materialize expands tpl for cluster into one job per binding of the variables the template uses.
// A template that uses no variables yields exactly one job.
func (e *Engine) Materialize(tpl JobTemplate, cluster string, vars variables.Set) ([]MaterializedJob, error) {
	graph := BuildTemplateGraph(tpl, vars)
	scope := Scope{Cluster: cluster, Vars: vars, Graph: graph}
	bindings := Cartesian(ResolveForCluster(cluster, vars), graph, tpl.texts()...)

	jobs := make([]MaterializedJob, 0, len(bindings))
	for _, binding := range bindings {
		job := MaterializedJob{Variables: binding.Clone()}
		fields := []struct {
			src  string
			dest *string
		}{
			{tpl.Name, &job.Name},
			{tpl.Config, &job.Config},
			{tpl.Command, &job.Command},
			{tpl.Preprocess, &job.Preprocess},
			{tpl.Postprocess, &job.Postprocess},
		}
		for _, f := range fields {
			if f.src == "" {
				continue
			}
			resolved, err := e.Substitute(f.src, binding, scope)
			if err != nil {
				return nil, errors.WithMessagef(err, "error expanding job %s", tpl.Name)
			}
			*f.dest = resolved
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ExpandAll expands every text in texts with the same binding, producing one result per binding of the variables
// the texts use. It is how cluster files expand config names, parameters and environment.
func (e *Engine) ExpandAll(texts map[string]string, cluster string, vars variables.Set) ([]map[string]string, error) {
	all := make([]string, 0, len(texts))
	for _, text := range texts {
		all = append(all, text)
	}
	graph := BuildGraph(vars, all...)
	scope := Scope{Cluster: cluster, Vars: vars, Graph: graph}
	bindings := Cartesian(ResolveForCluster(cluster, vars), graph, all...)

	results := make([]map[string]string, 0, len(bindings))
	for _, binding := range bindings {
		expanded := make(map[string]string, len(texts))
		for key, text := range texts {
			resolved, err := e.Substitute(text, binding, scope)
			if err != nil {
				return nil, err
			}
			expanded[key] = resolved
		}
		results = append(results, expanded)
	}
	return results, nil
}
