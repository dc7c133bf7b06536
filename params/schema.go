package params

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	ErrSchemaMismatch     = errors.New("params: values do not match schema")
	ErrUnsupportedVersion = errors.New("params: unsupported payload version")
	ErrStageMismatch      = errors.New("params: payload addressed to another stage")
	ErrNullVector         = errors.New("params: null parameter vector")
	ErrUnknownType        = errors.New("params: unknown parameter type")
)

// Type is a declared parameter type.
type Type string

const (
	Bool   Type = "bool"
	Int    Type = "int"
	Float  Type = "float"
	String Type = "str"
	List   Type = "list"
)

func parseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Bool, Int, Float, String, List:
		return t, nil
	case "string":
		return String, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Schema is the declared parameter layout of one stage type.
type Schema struct {
	Stage    string
	Names    []string
	Types    []Type
	defaults Vector
}

// NewSchema validates the declared names, types and defaults.
func NewSchema(stage string, names, types []string, defaults []any) (Schema, error) {
	if len(names) != len(types) || len(names) != len(defaults) {
		return Schema{}, fmt.Errorf("%w: %d names, %d types, %d defaults",
			ErrSchemaMismatch, len(names), len(types), len(defaults))
	}
	s := Schema{Stage: stage, Names: slices.Clone(names), Types: make([]Type, len(types))}
	for i, ts := range types {
		t, err := parseType(ts)
		if err != nil {
			return Schema{}, fmt.Errorf("parameter %q: %w", names[i], err)
		}
		s.Types[i] = t
	}
	d, err := s.Coerce(defaults)
	if err != nil {
		return Schema{}, fmt.Errorf("defaults: %w", err)
	}
	s.defaults = d
	return s, nil
}

// Len returns the number of declared parameters.
func (s Schema) Len() int { return len(s.Names) }

// Defaults returns the default vector.
func (s Schema) Defaults() Vector { return s.defaults }

// Coerce checks values against the schema and normalizes them: integers become int64, floats
// become float64, lists become []any.
func (s Schema) Coerce(values []any) (Vector, error) {
	if len(values) != len(s.Names) {
		return Vector{}, fmt.Errorf("%w: got %d values, want %d", ErrSchemaMismatch, len(values), len(s.Names))
	}
	out := make([]any, len(values))
	for i, v := range values {
		c, err := coerce(s.Types[i], v)
		if err != nil {
			return Vector{}, fmt.Errorf("%w: parameter %q: %v", ErrSchemaMismatch, s.Names[i], err)
		}
		out[i] = c
	}
	return Vector{names: s.Names, values: out}, nil
}

func coerce(t Type, v any) (any, error) {
	switch t {
	case Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case Int:
		if i, ok := asInt(v); ok {
			return i, nil
		}
		if f, ok := v.(float64); ok && f == math.Trunc(f) {
			return int64(f), nil
		}
	case Float:
		if f, ok := asFloat(v); ok {
			return f, nil
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case List:
		switch l := v.(type) {
		case []any:
			return slices.Clone(l), nil
		case []string:
			out := make([]any, len(l))
			for i, s := range l {
				out[i] = s
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
