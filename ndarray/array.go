package ndarray

import (
	"bytes"
	"fmt"
	"math"
	"slices"
)

// Array is an immutable n-dimensional array.
//
// The zero value is the empty array (IsZero reports true); it is what an unfilled input slot
// holds.
type Array struct {
	dtype DType
	shape []int
	data  []byte
}

// New wraps raw little-endian C-order bytes. The byte length must equal
// product(shape) * dtype.Size(). data is not copied.
func New(dtype DType, shape []int, data []byte) (Array, error) {
	if !dtype.Valid() {
		return Array{}, fmt.Errorf("%w: %q", ErrUnknownDType, dtype)
	}
	want, err := byteLen(dtype, shape)
	if err != nil {
		return Array{}, err
	}
	if len(data) != want {
		return Array{}, fmt.Errorf("%w: %s%v needs %d bytes, got %d", ErrShape, dtype, shape, want, len(data))
	}
	return Array{dtype: dtype, shape: slices.Clone(shape), data: data}, nil
}

// Zeros returns a zero-filled array.
func Zeros(dtype DType, shape ...int) (Array, error) {
	if !dtype.Valid() {
		return Array{}, fmt.Errorf("%w: %q", ErrUnknownDType, dtype)
	}
	n, err := byteLen(dtype, shape)
	if err != nil {
		return Array{}, err
	}
	return Array{dtype: dtype, shape: slices.Clone(shape), data: make([]byte, n)}, nil
}

// Full returns an array with every element set to v (converted to dtype).
func Full(dtype DType, v float64, shape ...int) (Array, error) {
	a, err := Zeros(dtype, shape...)
	if err != nil {
		return Array{}, err
	}
	c := codecs[dtype]
	for off := 0; off < len(a.data); off += c.size {
		c.store(a.data[off:], v)
	}
	return a, nil
}

// FromFloat64s builds an array of the given dtype from values in C order.
func FromFloat64s(dtype DType, shape []int, values []float64) (Array, error) {
	a, err := Zeros(dtype, shape...)
	if err != nil {
		return Array{}, err
	}
	if len(values) != a.Len() {
		return Array{}, fmt.Errorf("%w: %d values for shape %v", ErrShape, len(values), shape)
	}
	c := codecs[dtype]
	for i, v := range values {
		c.store(a.data[i*c.size:], v)
	}
	return a, nil
}

// elements returns product(shape), rejecting shapes whose product overflows an int.
func elements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrShape, shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: %v overflows", ErrShape, shape)
		}
		n *= d
	}
	return n, nil
}

// byteLen returns the payload size of an array of dtype and shape.
func byteLen(dtype DType, shape []int) (int, error) {
	n, err := elements(shape)
	if err != nil {
		return 0, err
	}
	size := dtype.Size()
	if n > math.MaxInt/size {
		return 0, fmt.Errorf("%w: %s%v overflows", ErrShape, dtype, shape)
	}
	return n * size, nil
}

// IsZero reports whether a is the empty array.
func (a Array) IsZero() bool { return a.dtype == "" }

// DType returns the element type.
func (a Array) DType() DType { return a.dtype }

// Shape returns a copy of the shape.
func (a Array) Shape() []int { return slices.Clone(a.shape) }

// Len returns the number of elements.
func (a Array) Len() int {
	if a.IsZero() {
		return 0
	}
	n, _ := elements(a.shape)
	return n
}

// Bytes returns the raw element bytes. Callers must not modify them.
func (a Array) Bytes() []byte { return a.data }

// At returns element i (flat C-order index) converted to float64.
func (a Array) At(i int) float64 {
	c := codecs[a.dtype]
	return c.load(a.data[i*c.size:])
}

// Float64s returns every element converted to float64.
func (a Array) Float64s() []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.At(i)
	}
	return out
}

// SameShape reports whether both arrays have identical shapes.
func (a Array) SameShape(b Array) bool {
	return slices.Equal(a.shape, b.shape)
}

// Equal reports whether both arrays have the same dtype, shape and bytes.
func (a Array) Equal(b Array) bool {
	return a.dtype == b.dtype && a.SameShape(b) && bytes.Equal(a.data, b.data)
}

func (a Array) String() string {
	if a.IsZero() {
		return "ndarray(empty)"
	}
	return fmt.Sprintf("ndarray(%s%v)", a.dtype, a.shape)
}
