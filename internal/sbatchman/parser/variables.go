package parser

import (
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/armadaproject/sbatchman/internal/sbatchman/expression"
	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

const (
	filePrefix       = "@file "
	dirPrefix        = "@dir "
	mapKey           = "map"
	perClusterKey    = "per_cluster"
	clusterDefault   = "default"
	scalarTypes      = "string, integer, float, or boolean"
	basicVarTypes    = "scalar or list"
	completeVarTypes = "scalar, list, or mapping with 'per_cluster' or 'map' key"
)

// ParseVariables parses a `variables` mapping.
//
// Scalars keep their YAML type. Strings starting with "@file " or "@dir " declare paths and strings starting
// with the expression token declare a dynamic expression. A mapping is either {map: {...}} or
// {per_cluster: {...}, default: ...}.
func ParseVariables(node *yaml.Node) (variables.Set, error) {
	entries, err := pairs(node)
	if err != nil {
		return nil, err
	}
	set := make(variables.Set, len(entries))
	for _, entry := range entries {
		contents, err := parseCompleteVar(entry.value)
		if err != nil {
			return nil, errors.WithMessagef(err, "variable %s", entry.key)
		}
		set[entry.key] = variables.Variable{Name: entry.key, Contents: contents}
	}
	return set, nil
}

func parseCompleteVar(node *yaml.Node) (variables.CompleteVar, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		s, err := parseScalar(node)
		return variables.ScalarContents(s), err
	case yaml.SequenceNode:
		list, err := parseScalars(node)
		return variables.ListContents(list...), err
	case yaml.MappingNode:
		if perCluster := lookup(node, perClusterKey); perCluster != nil {
			entries, err := parseMapping(perCluster)
			if err != nil {
				return variables.CompleteVar{}, err
			}
			clusterMap := variables.ClusterMap{PerCluster: entries}
			if def := lookup(node, clusterDefault); def != nil {
				basic, err := parseBasicVar(def)
				if err != nil {
					return variables.CompleteVar{}, err
				}
				clusterMap.Default = &basic
			}
			return variables.ClusterMapContents(clusterMap), nil
		}
		if m := lookup(node, mapKey); m != nil {
			entries, err := parseMapping(m)
			return variables.StandardMapContents(entries), err
		}
	}
	return variables.CompleteVar{}, wrongType(node, completeVarTypes)
}

func parseMapping(node *yaml.Node) (map[string]variables.BasicVar, error) {
	entries, err := pairs(node)
	if err != nil {
		return nil, err
	}
	out := make(map[string]variables.BasicVar, len(entries))
	for _, entry := range entries {
		basic, err := parseBasicVar(entry.value)
		if err != nil {
			return nil, errors.WithMessagef(err, "key %s", entry.key)
		}
		out[entry.key] = basic
	}
	return out, nil
}

func parseBasicVar(node *yaml.Node) (variables.BasicVar, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		s, err := parseScalar(node)
		return variables.ScalarVar(s), err
	case yaml.SequenceNode:
		list, err := parseScalars(node)
		return variables.ListVar(list...), err
	default:
		return variables.BasicVar{}, wrongType(node, basicVarTypes)
	}
}

func parseScalars(node *yaml.Node) ([]variables.Scalar, error) {
	out := make([]variables.Scalar, 0, len(node.Content))
	for _, item := range node.Content {
		s, err := parseScalar(resolve(item))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func parseScalar(node *yaml.Node) (variables.Scalar, error) {
	if node.Kind != yaml.ScalarNode {
		return variables.Scalar{}, wrongType(node, scalarTypes)
	}
	switch node.ShortTag() {
	case "!!str":
		s := node.Value
		switch {
		case strings.HasPrefix(s, filePrefix):
			return variables.NewFile(strings.TrimPrefix(s, filePrefix)), nil
		case strings.HasPrefix(s, dirPrefix):
			return variables.NewDirectory(strings.TrimPrefix(s, dirPrefix)), nil
		case strings.HasPrefix(s, expression.DefaultToken+" "):
			return variables.NewDynamicExpr(s), nil
		default:
			return variables.NewString(s), nil
		}
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			return variables.Scalar{}, errors.WithStack(err)
		}
		return variables.NewInt(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return variables.Scalar{}, errors.WithStack(err)
		}
		return variables.NewFloat(f), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return variables.Scalar{}, errors.WithStack(err)
		}
		return variables.NewBool(b), nil
	default:
		return variables.Scalar{}, wrongType(node, scalarTypes)
	}
}
