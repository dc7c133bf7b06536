/*
Package ndarray provides the typed n-dimensional array that flows through a Heron graph.

An Array is an immutable value: element type (DType), shape, and the raw element bytes in
little-endian C order. It is the unit the message envelope serializes and the unit work
functions receive and return.

# Element types

The supported element types mirror the names used on the wire:

	uint8 int8 uint16 int16 uint32 int32 uint64 int64 float32 float64 bool

Arithmetic (Sub) runs in the array's own element type. Integer results wrap on overflow the
same way the equivalent Go integer arithmetic does, so an image difference on uint8 frames stays
uint8.

# Resizing

ResizeTo performs nearest-neighbour resampling over the first two axes (rows, columns).
Trailing axes such as colour channels must already agree.

	small, err := ndarray.ResizeTo(big, []int{4, 4})
*/
package ndarray
