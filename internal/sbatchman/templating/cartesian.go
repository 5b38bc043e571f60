package templating

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Binding assigns a concrete string value to each variable name.
type Binding map[string]string

func (b Binding) Clone() Binding {
	return maps.Clone(b)
}

// Cartesian enumerates the bindings a template expands to.
//
// Only variables that texts use (directly or through other variables), that have no dependencies of their own and
// that resolved to at least one value take part. Names are taken in sorted order with the first name varying
// slowest, so the output order is stable. When nothing takes part the result is a single empty binding.
func Cartesian(resolved map[string][]string, graph *Graph, texts ...string) []Binding {
	used := graph.Used(texts...)
	var names []string
	for name, values := range resolved {
		if used[name] && !graph.HasDependencies(name) && len(values) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	bindings := []Binding{{}}
	for _, name := range names {
		next := make([]Binding, 0, len(bindings)*len(resolved[name]))
		for _, b := range bindings {
			for _, value := range resolved[name] {
				extended := b.Clone()
				extended[name] = value
				next = append(next, extended)
			}
		}
		bindings = next
	}
	return bindings
}
