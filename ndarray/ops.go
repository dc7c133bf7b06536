package ndarray

import (
	"fmt"
	"math"
)

type number interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64 | ~float32 | ~float64
}

func subEach[T number](dst, x, y []byte, size int, load func([]byte) T, store func([]byte, T)) {
	for off := 0; off+size <= len(x); off += size {
		store(dst[off:], load(x[off:])-load(y[off:]))
	}
}

// Sub returns a - b element-wise in the operands' dtype. Both operands must share dtype and
// shape. Bool arrays cannot be subtracted.
func Sub(a, b Array) (Array, error) {
	if a.IsZero() || b.IsZero() {
		return Array{}, fmt.Errorf("%w: empty operand", ErrIncompatible)
	}
	if a.dtype != b.dtype || !a.SameShape(b) {
		return Array{}, fmt.Errorf("%w: %s and %s", ErrIncompatible, a, b)
	}

	out := make([]byte, len(a.data))
	switch a.dtype {
	case Uint8:
		subEach(out, a.data, b.data, 1, func(p []byte) uint8 { return p[0] }, func(p []byte, v uint8) { p[0] = v })
	case Int8:
		subEach(out, a.data, b.data, 1, func(p []byte) int8 { return int8(p[0]) }, func(p []byte, v int8) { p[0] = byte(v) })
	case Uint16:
		subEach(out, a.data, b.data, 2, le.Uint16, le.PutUint16)
	case Int16:
		subEach(out, a.data, b.data, 2,
			func(p []byte) int16 { return int16(le.Uint16(p)) },
			func(p []byte, v int16) { le.PutUint16(p, uint16(v)) })
	case Uint32:
		subEach(out, a.data, b.data, 4, le.Uint32, le.PutUint32)
	case Int32:
		subEach(out, a.data, b.data, 4,
			func(p []byte) int32 { return int32(le.Uint32(p)) },
			func(p []byte, v int32) { le.PutUint32(p, uint32(v)) })
	case Uint64:
		subEach(out, a.data, b.data, 8, le.Uint64, le.PutUint64)
	case Int64:
		subEach(out, a.data, b.data, 8,
			func(p []byte) int64 { return int64(le.Uint64(p)) },
			func(p []byte, v int64) { le.PutUint64(p, uint64(v)) })
	case Float32:
		subEach(out, a.data, b.data, 4,
			func(p []byte) float32 { return math.Float32frombits(le.Uint32(p)) },
			func(p []byte, v float32) { le.PutUint32(p, math.Float32bits(v)) })
	case Float64:
		subEach(out, a.data, b.data, 8,
			func(p []byte) float64 { return math.Float64frombits(le.Uint64(p)) },
			func(p []byte, v float64) { le.PutUint64(p, math.Float64bits(v)) })
	default:
		return Array{}, fmt.Errorf("%w: cannot subtract %s", ErrIncompatible, a.dtype)
	}
	return Array{dtype: a.dtype, shape: a.Shape(), data: out}, nil
}

// ResizeTo resamples a to shape using nearest-neighbour selection over the first two axes.
// shape must have the same rank as a, and every axis after the second must be unchanged.
// 1-D arrays are resampled along their only axis.
func ResizeTo(a Array, shape []int) (Array, error) {
	if a.IsZero() {
		return Array{}, fmt.Errorf("%w: empty array", ErrShape)
	}
	if len(shape) != len(a.shape) || len(shape) == 0 {
		return Array{}, fmt.Errorf("%w: cannot resize %v to %v", ErrShape, a.shape, shape)
	}
	for i := 2; i < len(shape); i++ {
		if shape[i] != a.shape[i] {
			return Array{}, fmt.Errorf("%w: trailing axis %d differs (%v vs %v)", ErrShape, i, a.shape, shape)
		}
	}
	if a.SameShape(Array{shape: shape}) {
		return a, nil
	}

	out, err := Zeros(a.dtype, shape...)
	if err != nil {
		return Array{}, err
	}

	srcRows, dstRows := a.shape[0], shape[0]
	srcCols, dstCols := 1, 1
	if len(shape) > 1 {
		srcCols, dstCols = a.shape[1], shape[1]
	}
	if srcRows == 0 || srcCols == 0 {
		return out, nil
	}

	// bytes per (row, col) cell, i.e. all trailing axes
	cell := a.dtype.Size()
	for _, d := range shape[min(2, len(shape)):] {
		cell *= d
	}

	for y := 0; y < dstRows; y++ {
		sy := y * srcRows / dstRows
		for x := 0; x < dstCols; x++ {
			sx := x * srcCols / dstCols
			src := (sy*srcCols + sx) * cell
			dst := (y*dstCols + x) * cell
			copy(out.data[dst:dst+cell], a.data[src:src+cell])
		}
	}
	return out, nil
}
