package worker

import (
	"errors"
	"fmt"
	"slices"

	"github.com/YAMLcase/Heron/ndarray"
	"github.com/YAMLcase/Heron/topic"
)

// ErrShapeMismatch is reported when more than two input slots disagree on shape, or when two
// slots differ in a way resizing cannot fix.
var ErrShapeMismatch = errors.New("worker: input shape mismatch")

// placeholderShape is used when no slot holds a value to copy the shape from.
var placeholderShape = []int{100, 100}

// SyncBuffer is a hold-last-value join over the declared input topics.
//
// One slot per declared input, created once. A slot keeps its latest array until a newer one
// arrives, so a fast producer's value is reused across compute cycles of a slower co-producer.
// No timestamp correlation between slots is attempted.
//
// Owned by the reactor goroutine; not safe for concurrent use.
type SyncBuffer struct {
	names  []string
	values []ndarray.Array
}

// NewSyncBuffer creates one empty slot per input topic.
func NewSyncBuffer(inputs []string) *SyncBuffer {
	return &SyncBuffer{
		names:  slices.Clone(inputs),
		values: make([]ndarray.Array, len(inputs)),
	}
}

// Len returns the number of slots.
func (b *SyncBuffer) Len() int { return len(b.names) }

// Put writes arr into every slot whose name contains t and returns how many slots it filled.
func (b *SyncBuffer) Put(t string, arr ndarray.Array) int {
	n := 0
	for i, name := range b.names {
		if topic.SlotAccepts(name, t) {
			b.values[i] = arr
			n++
		}
	}
	return n
}

// Complete reports whether every slot holds a value.
func (b *SyncBuffer) Complete() bool {
	for _, v := range b.values {
		if v.IsZero() {
			return false
		}
	}
	return true
}

// Filled returns the number of non-empty slots.
func (b *SyncBuffer) Filled() int {
	n := 0
	for _, v := range b.values {
		if !v.IsZero() {
			n++
		}
	}
	return n
}

// Clear empties slot i.
func (b *SyncBuffer) Clear(i int) { b.values[i] = ndarray.Array{} }

// Reconcile applies the shape policy to a complete buffer:
//   - all slots share a shape: nothing to do
//   - exactly two slots differ: slot 1 is resized to slot 0's shape and stored
//   - otherwise: every slot whose shape differs from slot 0 is cleared and ErrShapeMismatch
//     is returned, so those slots refill from later messages
func (b *SyncBuffer) Reconcile() error {
	if len(b.values) < 2 || b.values[0].IsZero() {
		return nil
	}
	first := b.values[0]

	var mismatched []int
	for i := 1; i < len(b.values); i++ {
		if !b.values[i].IsZero() && !b.values[i].SameShape(first) {
			mismatched = append(mismatched, i)
		}
	}
	if len(mismatched) == 0 {
		return nil
	}

	if len(b.values) == 2 {
		resized, err := ndarray.ResizeTo(b.values[1], first.Shape())
		if err == nil {
			b.values[1] = resized
			return nil
		}
		second := b.values[1].String()
		b.Clear(1)
		return fmt.Errorf("%w: %s vs %s: %v", ErrShapeMismatch, first, second, err)
	}

	shapes := make([]string, 0, len(mismatched))
	for _, i := range mismatched {
		shapes = append(shapes, b.values[i].String())
		b.Clear(i)
	}
	return fmt.Errorf("%w: slot 0 is %s, slots %v are %v", ErrShapeMismatch, first, mismatched, shapes)
}

// Placeholder returns the deterministic stand-in output: zeros shaped like slot 0, or a
// 100x100 uint8 zero array when slot 0 is empty too.
func (b *SyncBuffer) Placeholder() ndarray.Array {
	if len(b.values) > 0 && !b.values[0].IsZero() {
		if a, err := ndarray.Zeros(b.values[0].DType(), b.values[0].Shape()...); err == nil {
			return a
		}
	}
	a, _ := ndarray.Zeros(ndarray.Uint8, placeholderShape...)
	return a
}

// Inputs returns a read-only view of the current slots.
func (b *SyncBuffer) Inputs() Inputs {
	return Inputs{names: b.names, values: slices.Clone(b.values)}
}

// Inputs is what a work function receives: the declared input topics and their latest arrays,
// in declaration order.
type Inputs struct {
	names  []string
	values []ndarray.Array
}

// NewInputs builds an Inputs value directly. Useful for calling work functions in tests.
func NewInputs(names []string, values []ndarray.Array) Inputs {
	return Inputs{names: slices.Clone(names), values: slices.Clone(values)}
}

// Len returns the number of slots.
func (in Inputs) Len() int { return len(in.values) }

// At returns the array in slot i.
func (in Inputs) At(i int) ndarray.Array { return in.values[i] }

// Name returns the declared topic of slot i.
func (in Inputs) Name(i int) string { return in.names[i] }

// Get returns the array of the slot declared as name.
func (in Inputs) Get(name string) (ndarray.Array, bool) {
	i := slices.Index(in.names, name)
	if i < 0 {
		return ndarray.Array{}, false
	}
	return in.values[i], !in.values[i].IsZero()
}
