package ndarray

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DType names an element type. The string form is the wire name.
type DType string

const (
	Uint8   DType = "uint8"
	Int8    DType = "int8"
	Uint16  DType = "uint16"
	Int16   DType = "int16"
	Uint32  DType = "uint32"
	Int32   DType = "int32"
	Uint64  DType = "uint64"
	Int64   DType = "int64"
	Float32 DType = "float32"
	Float64 DType = "float64"
	Bool    DType = "bool"
)

type elemCodec struct {
	size  int
	load  func(b []byte) float64
	store func(b []byte, v float64)
}

var le = binary.LittleEndian

var codecs = map[DType]elemCodec{
	Uint8: {1,
		func(b []byte) float64 { return float64(b[0]) },
		func(b []byte, v float64) { b[0] = uint8(int64(v)) }},
	Int8: {1,
		func(b []byte) float64 { return float64(int8(b[0])) },
		func(b []byte, v float64) { b[0] = byte(int8(int64(v))) }},
	Uint16: {2,
		func(b []byte) float64 { return float64(le.Uint16(b)) },
		func(b []byte, v float64) { le.PutUint16(b, uint16(int64(v))) }},
	Int16: {2,
		func(b []byte) float64 { return float64(int16(le.Uint16(b))) },
		func(b []byte, v float64) { le.PutUint16(b, uint16(int16(int64(v)))) }},
	Uint32: {4,
		func(b []byte) float64 { return float64(le.Uint32(b)) },
		func(b []byte, v float64) { le.PutUint32(b, uint32(int64(v))) }},
	Int32: {4,
		func(b []byte) float64 { return float64(int32(le.Uint32(b))) },
		func(b []byte, v float64) { le.PutUint32(b, uint32(int32(int64(v)))) }},
	Uint64: {8,
		func(b []byte) float64 { return float64(le.Uint64(b)) },
		func(b []byte, v float64) { le.PutUint64(b, uint64(v)) }},
	Int64: {8,
		func(b []byte) float64 { return float64(int64(le.Uint64(b))) },
		func(b []byte, v float64) { le.PutUint64(b, uint64(int64(v))) }},
	Float32: {4,
		func(b []byte) float64 { return float64(math.Float32frombits(le.Uint32(b))) },
		func(b []byte, v float64) { le.PutUint32(b, math.Float32bits(float32(v))) }},
	Float64: {8,
		func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) },
		func(b []byte, v float64) { le.PutUint64(b, math.Float64bits(v)) }},
	Bool: {1,
		func(b []byte) float64 {
			if b[0] != 0 {
				return 1
			}
			return 0
		},
		func(b []byte, v float64) {
			if v != 0 {
				b[0] = 1
			} else {
				b[0] = 0
			}
		}},
}

// Size returns the element width in bytes, or 0 for an unknown type.
func (d DType) Size() int {
	return codecs[d].size
}

// Valid reports whether d is a supported element type.
func (d DType) Valid() bool {
	_, ok := codecs[d]
	return ok
}

// ParseDType validates a wire name.
func ParseDType(s string) (DType, error) {
	d := DType(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDType, s)
	}
	return d, nil
}
