package params

import (
	"slices"
	"sync/atomic"
)

// Vector is an immutable, schema-checked parameter vector. Build one with Schema.Coerce or
// Schema.Decode.
type Vector struct {
	names  []string
	values []any
}

// Len returns the number of values.
func (v Vector) Len() int { return len(v.values) }

// Values returns a copy of the values in schema order.
func (v Vector) Values() []any { return slices.Clone(v.values) }

// At returns value i.
func (v Vector) At(i int) any { return v.values[i] }

// Lookup returns the value of the named parameter.
func (v Vector) Lookup(name string) (any, bool) {
	i := slices.Index(v.names, name)
	if i < 0 {
		return nil, false
	}
	return v.values[i], true
}

// Bool returns the named bool parameter, or false.
func (v Vector) Bool(name string) bool {
	x, _ := v.Lookup(name)
	b, _ := x.(bool)
	return b
}

// Int returns the named int parameter, or 0.
func (v Vector) Int(name string) int64 {
	x, _ := v.Lookup(name)
	i, _ := x.(int64)
	return i
}

// Float returns the named float parameter, or 0.
func (v Vector) Float(name string) float64 {
	x, _ := v.Lookup(name)
	f, _ := x.(float64)
	return f
}

// String returns the named string parameter, or "".
func (v Vector) String(name string) string {
	x, _ := v.Lookup(name)
	s, _ := x.(string)
	return s
}

// Store holds the live vector of a Worker.
type Store struct {
	current  atomic.Pointer[Vector]
	revision atomic.Uint64
}

// NewStore returns a store holding initial.
func NewStore(initial Vector) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Load returns the live vector.
func (s *Store) Load() Vector { return *s.current.Load() }

// Replace installs v as the live vector and returns the new revision.
func (s *Store) Replace(v Vector) uint64 {
	s.current.Store(&v)
	return s.revision.Add(1)
}

// Revision counts successful replacements.
func (s *Store) Revision() uint64 { return s.revision.Load() }
