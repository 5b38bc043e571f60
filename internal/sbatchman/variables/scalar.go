// Package variables contains the typed values that job templates are expanded from.
//
// A Scalar is a single typed leaf value. Scalars are grouped into a BasicVar (one value or a list of values),
// and a declared Variable holds a CompleteVar, which may additionally be a plain key->value map addressed with
// ${NAME}[key] syntax or a per-cluster map that falls back to a default.
package variables

import (
	"fmt"
	"strconv"
)

type ScalarKind int

const (
	StringScalar ScalarKind = iota
	IntScalar
	FloatScalar
	BoolScalar
	FileScalar
	DirectoryScalar
	DynamicExprScalar
)

func (k ScalarKind) String() string {
	switch k {
	case StringScalar:
		return "string"
	case IntScalar:
		return "int"
	case FloatScalar:
		return "float"
	case BoolScalar:
		return "bool"
	case FileScalar:
		return "file"
	case DirectoryScalar:
		return "directory"
	case DynamicExprScalar:
		return "expression"
	default:
		return fmt.Sprintf("ScalarKind(%d)", int(k))
	}
}

// Scalar is an immutable typed leaf value.
// Only the field matching Kind is meaningful; paths and expression sources are stored in s.
type Scalar struct {
	kind ScalarKind
	s    string
	i    int64
	f    float64
	b    bool
}

func NewString(s string) Scalar { return Scalar{kind: StringScalar, s: s} }

func NewInt(i int64) Scalar { return Scalar{kind: IntScalar, i: i} }

func NewFloat(f float64) Scalar { return Scalar{kind: FloatScalar, f: f} }

func NewBool(b bool) Scalar { return Scalar{kind: BoolScalar, b: b} }

func NewFile(path string) Scalar { return Scalar{kind: FileScalar, s: path} }

func NewDirectory(path string) Scalar { return Scalar{kind: DirectoryScalar, s: path} }

// NewDynamicExpr wraps the source of an embedded expression, delimiters included.
// The source is substituted verbatim and evaluated after all variables have been replaced.
func NewDynamicExpr(source string) Scalar { return Scalar{kind: DynamicExprScalar, s: source} }

func (s Scalar) Kind() ScalarKind { return s.kind }

// String returns the text a scalar is substituted as.
// Floats use the shortest decimal that round-trips, without exponent, so 1.0 renders as "1".
func (s Scalar) String() string {
	switch s.kind {
	case IntScalar:
		return strconv.FormatInt(s.i, 10)
	case FloatScalar:
		return strconv.FormatFloat(s.f, 'f', -1, 64)
	case BoolScalar:
		return strconv.FormatBool(s.b)
	default:
		return s.s
	}
}

// Native returns the scalar as a plain Go value, used when a value has to be serialised with its type.
func (s Scalar) Native() interface{} {
	switch s.kind {
	case IntScalar:
		return s.i
	case FloatScalar:
		return s.f
	case BoolScalar:
		return s.b
	default:
		return s.s
	}
}

func (s Scalar) GoString() string {
	return fmt.Sprintf("%s(%q)", s.kind, s.String())
}
