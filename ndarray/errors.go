package ndarray

import "errors"

var (
	// ErrUnknownDType is returned for element type names outside the supported set.
	ErrUnknownDType = errors.New("ndarray: unknown dtype")

	// ErrShape is returned when a shape is invalid or does not match the data length.
	ErrShape = errors.New("ndarray: invalid shape")

	// ErrIncompatible is returned by binary operations on arrays of different dtype or shape.
	ErrIncompatible = errors.New("ndarray: incompatible operands")
)
