package templating

import (
	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

// ResolveForCluster returns the candidate values of every enumerable variable as seen from cluster.
//
// Scalars yield one value and lists yield their elements. Per-cluster maps yield the entry for cluster, or the
// default when the cluster has none. Plain maps are only addressed through ${MAP}[key] lookups and never
// appear. Variables that resolve to no values are omitted.
func ResolveForCluster(cluster string, vars variables.Set) map[string][]string {
	resolved := make(map[string][]string, len(vars))
	for name, v := range vars {
		var values []string
		switch v.Contents.Kind() {
		case variables.ScalarKindVar:
			values = []string{v.Contents.Scalar().String()}
		case variables.ListKindVar:
			values = variables.ListVar(v.Contents.List()...).Values()
		case variables.ClusterMapKindVar:
			if basic, ok := v.Contents.ClusterMap().Lookup(cluster); ok {
				values = basic.Values()
			}
		case variables.StandardMapKindVar:
			continue
		}
		if len(values) > 0 {
			resolved[name] = values
		}
	}
	return resolved
}
