package variables

import (
	"fmt"
)

// BasicVar is a single resolvable slot: either one Scalar or a list of them.
type BasicVar struct {
	scalar Scalar
	list   []Scalar
	isList bool
}

func ScalarVar(s Scalar) BasicVar { return BasicVar{scalar: s} }

func ListVar(items ...Scalar) BasicVar {
	return BasicVar{list: append([]Scalar(nil), items...), isList: true}
}

func (v BasicVar) IsList() bool { return v.isList }

func (v BasicVar) Scalar() Scalar { return v.scalar }

func (v BasicVar) List() []Scalar { return v.list }

// Scalars returns the values of the slot; a scalar slot yields exactly one element.
func (v BasicVar) Scalars() []Scalar {
	if v.isList {
		return v.list
	}
	return []Scalar{v.scalar}
}

// Values returns the display strings of every value held by the slot.
func (v BasicVar) Values() []string {
	scalars := v.Scalars()
	out := make([]string, len(scalars))
	for i, s := range scalars {
		out[i] = s.String()
	}
	return out
}

// ClusterMap selects a value by cluster name and falls back to Default when the cluster has no entry.
type ClusterMap struct {
	Default    *BasicVar
	PerCluster map[string]BasicVar
}

// Lookup returns the entry for cluster, or the default. The second return value is false when neither exists.
func (m ClusterMap) Lookup(cluster string) (BasicVar, bool) {
	if v, ok := m.PerCluster[cluster]; ok {
		return v, true
	}
	if m.Default != nil {
		return *m.Default, true
	}
	return BasicVar{}, false
}

type CompleteKind int

const (
	ScalarKindVar CompleteKind = iota
	ListKindVar
	StandardMapKindVar
	ClusterMapKindVar
)

func (k CompleteKind) String() string {
	switch k {
	case ScalarKindVar:
		return "scalar"
	case ListKindVar:
		return "list"
	case StandardMapKindVar:
		return "map"
	case ClusterMapKindVar:
		return "per_cluster"
	default:
		return fmt.Sprintf("CompleteKind(%d)", int(k))
	}
}

// CompleteVar is the declared contents of a variable.
type CompleteVar struct {
	kind       CompleteKind
	scalar     Scalar
	list       []Scalar
	standard   map[string]BasicVar
	clusterMap ClusterMap
}

func ScalarContents(s Scalar) CompleteVar { return CompleteVar{kind: ScalarKindVar, scalar: s} }

func ListContents(items ...Scalar) CompleteVar {
	return CompleteVar{kind: ListKindVar, list: append([]Scalar(nil), items...)}
}

func StandardMapContents(m map[string]BasicVar) CompleteVar {
	return CompleteVar{kind: StandardMapKindVar, standard: m}
}

func ClusterMapContents(m ClusterMap) CompleteVar {
	return CompleteVar{kind: ClusterMapKindVar, clusterMap: m}
}

func (c CompleteVar) Kind() CompleteKind { return c.kind }

func (c CompleteVar) Scalar() Scalar { return c.scalar }

func (c CompleteVar) List() []Scalar { return c.list }

func (c CompleteVar) StandardMap() map[string]BasicVar { return c.standard }

func (c CompleteVar) ClusterMap() ClusterMap { return c.clusterMap }

// Texts returns every literal string held anywhere in the variable, including all per-cluster entries.
// It is what reference scanning operates on.
func (c CompleteVar) Texts() []string {
	var out []string
	switch c.kind {
	case ScalarKindVar:
		out = append(out, c.scalar.String())
	case ListKindVar:
		for _, s := range c.list {
			out = append(out, s.String())
		}
	case StandardMapKindVar:
		for _, v := range c.standard {
			out = append(out, v.Values()...)
		}
	case ClusterMapKindVar:
		if c.clusterMap.Default != nil {
			out = append(out, c.clusterMap.Default.Values()...)
		}
		for _, v := range c.clusterMap.PerCluster {
			out = append(out, v.Values()...)
		}
	}
	return out
}

// Variable is a named declaration. Two variables are the same variable if they have the same name.
type Variable struct {
	Name     string
	Contents CompleteVar
}

func (v Variable) Equal(other Variable) bool {
	return v.Name == other.Name
}

// Set holds declared variables keyed by name.
type Set map[string]Variable

func NewSet(vars ...Variable) Set {
	set := make(Set, len(vars))
	for _, v := range vars {
		set[v.Name] = v
	}
	return set
}

// Get returns the contents declared for name.
func (s Set) Get(name string) (CompleteVar, bool) {
	v, ok := s[name]
	return v.Contents, ok
}

// Merge returns a new set containing s overlaid with override; variables in override win.
func (s Set) Merge(override Set) Set {
	out := make(Set, len(s)+len(override))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
