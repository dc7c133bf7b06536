package params

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the payload version written by Encode.
const Version = 1

type payload struct {
	Version int    `msgpack:"v"`
	Stage   string `msgpack:"stage"`
	Values  []any  `msgpack:"values"`
}

// Encode serializes v for the parameter channel.
func (s Schema) Encode(v Vector) ([]byte, error) {
	if v.Len() != s.Len() {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrSchemaMismatch, v.Len(), s.Len())
	}
	values := v.values
	if values == nil {
		values = []any{}
	}
	b, err := msgpack.Marshal(payload{Version: Version, Stage: s.Stage, Values: values})
	if err != nil {
		return nil, fmt.Errorf("params: encode: %w", err)
	}
	return b, nil
}

// EncodeValues coerces raw values and serializes them.
func (s Schema) EncodeValues(values []any) ([]byte, error) {
	v, err := s.Coerce(values)
	if err != nil {
		return nil, err
	}
	return s.Encode(v)
}

// Decode parses and validates a parameter payload.
func (s Schema) Decode(b []byte) (Vector, error) {
	var p payload
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Vector{}, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if p.Version != Version {
		return Vector{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	if p.Stage != "" && s.Stage != "" && p.Stage != s.Stage {
		return Vector{}, fmt.Errorf("%w: %q, schema is %q", ErrStageMismatch, p.Stage, s.Stage)
	}
	if p.Values == nil {
		return Vector{}, ErrNullVector
	}
	return s.Coerce(p.Values)
}
