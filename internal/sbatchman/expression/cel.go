// Package expression evaluates the small embedded expressions that job templates may contain.
//
// Expressions are written in CEL (https://github.com/google/cel-go), which is side-effect free and cannot
// reach the filesystem or network, so evaluating user templates never runs arbitrary code.
package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const defaultProgramCacheSize = 512

// Evaluator turns an expression body into text. The header holds helper definitions made available to the body.
type Evaluator interface {
	Evaluate(header, body string) (string, error)
}

var definitionRegex = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)

// CELEvaluator evaluates CEL expressions.
//
// The header is a sequence of lines of the form `name = expression`. Definitions are evaluated in order and
// each one may use the names defined before it. Blank lines and lines starting with # are ignored.
type CELEvaluator struct {
	programs *lru.Cache
}

func NewCELEvaluator() *CELEvaluator {
	programs, err := lru.New(defaultProgramCacheSize)
	if err != nil {
		panic(errors.WithStack(err).Error())
	}
	return &CELEvaluator{programs: programs}
}

type definition struct {
	name string
	expr string
}

func parseHeader(header string) ([]definition, error) {
	var defs []definition
	for i, line := range strings.Split(header, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		match := definitionRegex.FindStringSubmatch(line)
		if match == nil {
			return nil, errors.Errorf("header line %d is not a definition of the form `name = expression`: %q", i+1, line)
		}
		defs = append(defs, definition{name: match[1], expr: strings.TrimSpace(match[2])})
	}
	return defs, nil
}

func (e *CELEvaluator) Evaluate(header, body string) (string, error) {
	defs, err := parseHeader(header)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(defs))
	activation := make(map[string]interface{}, len(defs))
	for _, def := range defs {
		val, err := e.eval(names, def.expr, activation)
		if err != nil {
			return "", errors.WithMessagef(err, "error evaluating header definition %s", def.name)
		}
		if _, seen := activation[def.name]; !seen {
			names = append(names, def.name)
		}
		activation[def.name] = val
	}
	val, err := e.eval(names, body, activation)
	if err != nil {
		return "", err
	}
	return Render(val), nil
}

func (e *CELEvaluator) eval(names []string, src string, activation map[string]interface{}) (ref.Val, error) {
	program, err := e.program(names, src)
	if err != nil {
		return nil, err
	}
	out, _, err := program.Eval(activation)
	if err != nil {
		return nil, errors.Wrapf(err, "error evaluating expression %q", src)
	}
	return out, nil
}

func (e *CELEvaluator) program(names []string, src string) (cel.Program, error) {
	key := strings.Join(names, ",") + "\x00" + src
	if cached, ok := e.programs.Get(key); ok {
		return cached.(cel.Program), nil
	}
	opts := make([]cel.EnvOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error creating expression environment")
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "error compiling expression %q", src)
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating program for expression %q", src)
	}
	e.programs.Add(key, program)
	return program, nil
}

// Render converts an evaluation result to the text substituted into a template.
func Render(val ref.Val) string {
	switch v := val.(type) {
	case types.String:
		return string(v)
	case types.Int:
		return strconv.FormatInt(int64(v), 10)
	case types.Uint:
		return strconv.FormatUint(uint64(v), 10)
	case types.Double:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case types.Bool:
		return strconv.FormatBool(bool(v))
	default:
		return fmt.Sprint(val.Value())
	}
}
