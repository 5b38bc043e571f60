package parser

import (
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

// IncludeVariables returns the variables declared in the file at path together with those of every file it
// includes, directly or transitively.
//
// Files are processed from a stack starting with path. When the same name is declared more than once the first
// declaration processed wins: a file's own variables take precedence over included ones, and an earlier entry of
// an include list over a later one. Reaching a file that has already been processed is an error.
func IncludeVariables(path string, logger *log.Entry) (variables.Set, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	root, err := loadDocument(path, logger)
	if err != nil {
		return nil, err
	}
	return includeVariables(path, root, logger)
}

func includeVariables(path string, root *yaml.Node, logger *log.Entry) (variables.Set, error) {
	rootPath, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	var (
		processed []string
		stack     = []string{rootPath}
		set       = variables.Set{}
	)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		doc := root
		if current != rootPath {
			logger.Debugf("loading included variables from %s", current)
			if doc, err = loadDocument(current, logger); err != nil {
				return nil, err
			}
			warnIgnoredKeys(current, doc, logger)
		}

		includes, err := includedFiles(current, doc)
		if err != nil {
			return nil, err
		}
		// Pushed in reverse so the first listed file is processed, and wins, first.
		for i := len(includes) - 1; i >= 0; i-- {
			if includes[i] == current || slices.Contains(processed, includes[i]) {
				return nil, &ErrCircularInclude{File: includes[i]}
			}
			stack = append(stack, includes[i])
		}
		processed = append(processed, current)

		if node := lookup(doc, variablesKey); node != nil {
			declared, err := ParseVariables(node)
			if err != nil {
				return nil, errors.WithMessage(err, current)
			}
			for name, v := range declared {
				if _, ok := set[name]; !ok {
					set[name] = v
				}
			}
		}
	}
	return set, nil
}

// includedFiles returns the canonical paths of the files doc includes. Relative names are relative to the
// directory of the including file.
func includedFiles(current string, doc *yaml.Node) ([]string, error) {
	node := lookup(doc, includeKey)
	if node == nil {
		return nil, nil
	}
	var names []string
	switch node.Kind {
	case yaml.ScalarNode:
		names = []string{node.Value}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			item = resolve(item)
			if item.Kind != yaml.ScalarNode {
				return nil, &ErrIncludeWrongType{Value: describe(item), Line: item.Line}
			}
			names = append(names, item.Value)
		}
	default:
		return nil, &ErrIncludeWrongType{Value: describe(node), Line: node.Line}
	}

	paths := make([]string, 0, len(names))
	for _, name := range names {
		if !filepath.IsAbs(name) {
			name = filepath.Join(filepath.Dir(current), name)
		}
		path, err := canonicalPath(name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func warnIgnoredKeys(path string, doc *yaml.Node, logger *log.Entry) {
	entries, err := pairs(doc)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.key != variablesKey && entry.key != includeKey {
			logger.Warnf("%s: include imports only variables; ignoring key %q", path, entry.key)
		}
	}
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve %s", path)
	}
	return resolved, nil
}
