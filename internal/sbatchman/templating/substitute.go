package templating

import (
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/sbatchman/internal/sbatchman/expression"
	"github.com/armadaproject/sbatchman/internal/sbatchman/variables"
)

// MaxResolutionIterations bounds the fixed-point resolution of dependent variables.
const MaxResolutionIterations = 100

var mapLookupRegex = regexp.MustCompile(`\$\{([^}]+)\}\[([^\]]+)\]`)

// Scope is everything substitution needs besides the binding itself.
type Scope struct {
	Cluster string
	Vars    variables.Set
	Graph   *Graph
}

// Engine substitutes bindings into template text and evaluates any embedded expressions.
type Engine struct {
	spans  *expression.Spans
	logger *log.Entry
}

// NewEngine returns an engine that evaluates expression spans with spans. A nil spans disables evaluation.
func NewEngine(spans *expression.Spans, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine{spans: spans, logger: logger}
}

// Substitute resolves text for one binding:
//  1. dependent variables missing from the binding are added with their declared value;
//  2. dependent values are re-substituted until they stop changing;
//  3. ${NAME} references are replaced, leaving unknown names as they are;
//  4. ${MAP}[key] lookups are replaced, and steps 3 and 4 repeat while lookups yield new references;
//  5. expression spans are evaluated.
func (e *Engine) Substitute(text string, binding Binding, scope Scope) (string, error) {
	values := e.resolveDependencies(binding, scope)
	result := SubstituteSimple(text, values)
	for i := 0; i < MaxResolutionIterations; i++ {
		next, err := substituteMaps(result, values, scope.Vars)
		if err != nil {
			return "", err
		}
		if next == result {
			break
		}
		result = SubstituteSimple(next, values)
	}
	if e.spans != nil {
		result = e.spans.Rewrite(result)
	}
	return result, nil
}

func (e *Engine) resolveDependencies(binding Binding, scope Scope) Binding {
	values := binding.Clone()
	if values == nil {
		values = Binding{}
	}
	if scope.Graph == nil {
		return values
	}
	for name, v := range scope.Vars {
		if _, ok := values[name]; ok || !scope.Graph.HasDependencies(name) {
			continue
		}
		if initial, ok := initialValue(v.Contents, scope.Cluster); ok {
			values[name] = initial
		}
	}

	names := maps.Keys(values)
	slices.Sort(names)
	iterations := 0
	for changed := true; changed; {
		if iterations >= MaxResolutionIterations {
			e.logger.WithField("iterations", iterations).Warn("maximum dependency resolution iterations reached, possible circular dependency")
			break
		}
		changed = false
		iterations++
		for _, name := range names {
			if !scope.Graph.HasDependencies(name) {
				continue
			}
			current := values[name]
			next := SubstituteSimple(current, values)
			if next != current {
				values[name] = next
				changed = true
			}
		}
	}
	return values
}

// initialValue is the unsubstituted value of a dependent variable. Lists contribute their first element and plain
// maps contribute nothing.
func initialValue(contents variables.CompleteVar, cluster string) (string, bool) {
	switch contents.Kind() {
	case variables.ScalarKindVar:
		return contents.Scalar().String(), true
	case variables.ListKindVar:
		if list := contents.List(); len(list) > 0 {
			return list[0].String(), true
		}
	case variables.ClusterMapKindVar:
		if basic, ok := contents.ClusterMap().Lookup(cluster); ok {
			if values := basic.Values(); len(values) > 0 {
				return values[0], true
			}
		}
	}
	return "", false
}

// SubstituteSimple replaces ${NAME} with values[NAME] for every name in values, in sorted name order.
func SubstituteSimple(text string, values Binding) string {
	if !strings.Contains(text, "${") {
		return text
	}
	names := maps.Keys(values)
	slices.Sort(names)
	for _, name := range names {
		text = strings.ReplaceAll(text, variables.Placeholder(name), values[name])
	}
	return text
}

func substituteMaps(text string, values Binding, vars variables.Set) (string, error) {
	for i := 0; i < MaxResolutionIterations; i++ {
		changed := false
		var lookupErr error
		text = mapLookupRegex.ReplaceAllStringFunc(text, func(match string) string {
			groups := mapLookupRegex.FindStringSubmatch(match)
			mapName, keyExpr := groups[1], groups[2]
			contents, declared := vars.Get(mapName)
			if !declared {
				if lookupErr == nil {
					lookupErr = &ErrUnknownVariable{Name: mapName, Text: match}
				}
				return match
			}
			key := keyExpr
			if strings.HasPrefix(keyExpr, "${") && strings.HasSuffix(keyExpr, "}") {
				keyName := keyExpr[2 : len(keyExpr)-1]
				value, bound := values[keyName]
				if !bound {
					if _, ok := vars.Get(keyName); !ok && lookupErr == nil {
						lookupErr = &ErrUnknownVariable{Name: keyName, Text: match}
					}
					return match
				}
				key = value
			}
			if contents.Kind() != variables.StandardMapKindVar {
				return match
			}
			entry, ok := contents.StandardMap()[key]
			if !ok || entry.IsList() {
				// List-valued entries are not expanded and keep the lookup text.
				return match
			}
			changed = true
			return entry.Scalar().String()
		})
		if lookupErr != nil {
			return "", lookupErr
		}
		if !changed {
			break
		}
	}
	return text, nil
}
