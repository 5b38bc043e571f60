// Package parser reads the YAML files describing clusters and jobs.
//
// Both kinds of file may declare `variables`, pull in variables from other files with `include`, and provide an
// `expression_header` with helper definitions for embedded expressions.
package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	variablesKey        = "variables"
	includeKey          = "include"
	expressionHeaderKey = "expression_header"
)

// loadDocument reads the first document of a YAML file and returns its root mapping.
func loadDocument(path string, logger *log.Entry) (*yaml.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	var doc yaml.Node
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Errorf("%s is empty", path)
		}
		return nil, errors.Wrapf(err, "error parsing %s", path)
	}
	var extra yaml.Node
	if err := decoder.Decode(&extra); err == nil {
		logger.Warnf("%s contains more than one document; only the first is used", path)
	}

	root := resolve(&doc)
	if root.Kind != yaml.MappingNode {
		return nil, errors.WithMessage(wrongType(root, "mapping"), path)
	}
	if err := checkDuplicateKeys(root); err != nil {
		return nil, errors.WithMessage(err, path)
	}
	return root, nil
}

// resolve unwraps document and alias nodes.
func resolve(node *yaml.Node) *yaml.Node {
	for node != nil {
		switch {
		case node.Kind == yaml.DocumentNode && len(node.Content) == 1:
			node = node.Content[0]
		case node.Kind == yaml.AliasNode && node.Alias != nil:
			node = node.Alias
		default:
			return node
		}
	}
	return node
}

type pair struct {
	key   string
	value *yaml.Node
}

// pairs returns the entries of a mapping in document order.
func pairs(node *yaml.Node) ([]pair, error) {
	node = resolve(node)
	if node.Kind != yaml.MappingNode {
		return nil, wrongType(node, "mapping")
	}
	out := make([]pair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := resolve(node.Content[i])
		if key.Kind != yaml.ScalarNode {
			return nil, wrongType(key, "string key")
		}
		out = append(out, pair{key: key.Value, value: resolve(node.Content[i+1])})
	}
	return out, nil
}

// lookup returns the value stored under key in a mapping, or nil.
func lookup(node *yaml.Node, key string) *yaml.Node {
	node = resolve(node)
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if k := resolve(node.Content[i]); k.Kind == yaml.ScalarNode && k.Value == key {
			return resolve(node.Content[i+1])
		}
	}
	return nil
}

func lookupString(node *yaml.Node, key string) (string, error) {
	value := lookup(node, key)
	if value == nil {
		return "", nil
	}
	if value.Kind != yaml.ScalarNode {
		return "", wrongType(value, "string")
	}
	return value.Value, nil
}

func checkDuplicateKeys(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		seen := make(map[string]int, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if key.Kind == yaml.ScalarNode {
				if line, ok := seen[key.Value]; ok {
					return errors.Errorf("line %d: key %q already defined at line %d", key.Line, key.Value, line)
				}
				seen[key.Value] = key.Line
			}
			if err := checkDuplicateKeys(node.Content[i+1]); err != nil {
				return err
			}
		}
	case yaml.SequenceNode, yaml.DocumentNode:
		for _, child := range node.Content {
			if err := checkDuplicateKeys(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func describe(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return fmt.Sprintf("%s %q", node.ShortTag(), node.Value)
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	default:
		return "empty node"
	}
}

func wrongType(node *yaml.Node, expected string) error {
	return &ErrWrongType{Value: describe(node), Expected: expected, Line: node.Line}
}
