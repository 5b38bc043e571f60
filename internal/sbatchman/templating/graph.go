// Package templating expands job templates into concrete jobs.
//
// Expansion happens in four stages: a dependency graph records which declared variables a template uses and
// which of those are themselves defined in terms of other variables; declared values are resolved for the target
// cluster; the independent variables are enumerated as a cartesian product; and every resulting binding is
// substituted into the template.
package templating

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

// Graph maps every variable reachable from a set of template strings to the variables its own value references.
// A variable with a non-empty dependency list is dependent; it is resolved by substitution rather than enumerated.
type Graph struct {
	dependencies map[string][]string
}

// BuildGraph seeds the graph with the variables referenced directly from texts and then follows references
// found inside the declared values until a full pass adds nothing. Undeclared names are kept as entries with no
// dependencies. Mutually referencing variables terminate because the set of names is finite.
func BuildGraph(vars variables.Set, texts ...string) *Graph {
	dependencies := make(map[string][]string)
	for _, text := range texts {
		for _, name := range variables.References(text) {
			if _, ok := dependencies[name]; !ok {
				dependencies[name] = nil
			}
		}
	}

	for changed := true; changed; {
		changed = false
		names := maps.Keys(dependencies)
		slices.Sort(names)
		for _, name := range names {
			contents, ok := vars.Get(name)
			if !ok {
				continue
			}
			for _, text := range contents.Texts() {
				for _, dep := range variables.References(text) {
					if _, ok := dependencies[dep]; !ok {
						dependencies[dep] = nil
						changed = true
					}
					if !slices.Contains(dependencies[name], dep) {
						dependencies[name] = append(dependencies[name], dep)
						changed = true
					}
				}
			}
		}
	}
	return &Graph{dependencies: dependencies}
}

// BuildTemplateGraph builds the graph for every non-empty field of a job template.
func BuildTemplateGraph(tpl JobTemplate, vars variables.Set) *Graph {
	return BuildGraph(vars, tpl.texts()...)
}

func (g *Graph) HasDependencies(name string) bool {
	return len(g.dependencies[name]) > 0
}

// Dependencies returns the variables that name's value references directly.
func (g *Graph) Dependencies(name string) []string {
	return slices.Clone(g.dependencies[name])
}

func (g *Graph) Contains(name string) bool {
	_, ok := g.dependencies[name]
	return ok
}

// Names returns every variable in the graph, sorted.
func (g *Graph) Names() []string {
	names := maps.Keys(g.dependencies)
	slices.Sort(names)
	return names
}

// Used returns the variables referenced from texts, directly or through the values of other variables.
func (g *Graph) Used(texts ...string) map[string]bool {
	used := make(map[string]bool)
	var queue []string
	for _, text := range texts {
		for _, name := range variables.References(text) {
			if !used[name] {
				used[name] = true
				queue = append(queue, name)
			}
		}
	}
	for len(queue) > 0 {
		name := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		for _, dep := range g.dependencies[name] {
			if !used[dep] {
				used[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return used
}
