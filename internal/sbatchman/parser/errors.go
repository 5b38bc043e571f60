package parser

import "fmt"

// ErrWrongType is returned when a YAML node does not have the shape expected at its position.
type ErrWrongType struct {
	Value    string
	Expected string
	Line     int
}

func (err *ErrWrongType) Error() string {
	return fmt.Sprintf("line %d: expected %s, found %s", err.Line, err.Expected, err.Value)
}

type ErrMissingKey struct {
	Key  string
	File string
}

func (err *ErrMissingKey) Error() string {
	return fmt.Sprintf("%s: missing required key %q", err.File, err.Key)
}

// ErrCircularInclude is returned when a file is reached a second time while following includes.
type ErrCircularInclude struct {
	File string
}

func (err *ErrCircularInclude) Error() string {
	return fmt.Sprintf("circular include of %s", err.File)
}

// ErrIncludeWrongType is returned when `include` is neither a file name nor a list of file names.
type ErrIncludeWrongType struct {
	Value string
	Line  int
}

func (err *ErrIncludeWrongType) Error() string {
	return fmt.Sprintf("line %d: include must be a file name or a list of file names, found %s", err.Line, err.Value)
}

// ErrParameterNotAllowed is returned when a config sets a flag its cluster's scheduler does not accept.
type ErrParameterNotAllowed struct {
	Parameter string
	Scheduler string
	Config    string
}

func (err *ErrParameterNotAllowed) Error() string {
	return fmt.Sprintf("parameter %q of config %q is not allowed for scheduler %s", err.Parameter, err.Config, err.Scheduler)
}
