package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/ndarray"
)

func TestSyncBuffer_GatesOnFullOccupancy(t *testing.T) {
	b := NewSyncBuffer([]string{inputA, inputB})
	assert.False(t, b.Complete())

	assert.Equal(t, 1, b.Put(inputA, full(t, 1, 4, 4)))
	assert.False(t, b.Complete())
	assert.Equal(t, 1, b.Filled())

	assert.Equal(t, 0, b.Put("Blur##3##Out", full(t, 1, 4, 4)), "undeclared topic")
	assert.Equal(t, 1, b.Put(inputB, full(t, 2, 4, 4)))
	assert.True(t, b.Complete())

	in := b.Inputs()
	require.Equal(t, 2, in.Len())
	assert.Equal(t, inputB, in.Name(1))
	got, ok := in.Get(inputA)
	assert.True(t, ok)
	assert.Equal(t, 1.0, got.At(0))
}

func TestSyncBuffer_ContainmentFillsSlot(t *testing.T) {
	b := NewSyncBuffer([]string{"Camera##0##Frame Out"})
	assert.Equal(t, 1, b.Put("Camera##0", full(t, 1, 2, 2)))
	assert.True(t, b.Complete())
}

func TestSyncBuffer_Reconcile(t *testing.T) {
	t.Run("same shape", func(t *testing.T) {
		b := NewSyncBuffer([]string{inputA, inputB})
		b.Put(inputA, full(t, 1, 4, 4))
		b.Put(inputB, full(t, 2, 4, 4))
		assert.NoError(t, b.Reconcile())
	})

	t.Run("two slots resize second", func(t *testing.T) {
		b := NewSyncBuffer([]string{inputA, inputB})
		b.Put(inputA, full(t, 1, 4, 4))
		b.Put(inputB, full(t, 2, 8, 8))
		require.NoError(t, b.Reconcile())
		assert.Equal(t, []int{4, 4}, b.Inputs().At(1).Shape())
		assert.True(t, b.Complete())
	})

	t.Run("two slots rank mismatch", func(t *testing.T) {
		b := NewSyncBuffer([]string{inputA, inputB})
		b.Put(inputA, full(t, 1, 4, 4))
		b.Put(inputB, full(t, 2, 4, 4, 3))
		assert.ErrorIs(t, b.Reconcile(), ErrShapeMismatch)
		assert.False(t, b.Complete())
	})

	t.Run("three slots", func(t *testing.T) {
		b := NewSyncBuffer([]string{inputA, inputB, "c"})
		b.Put(inputA, full(t, 1, 4, 4))
		b.Put(inputB, full(t, 1, 8, 8))
		b.Put("c", full(t, 1, 4, 4))
		assert.ErrorIs(t, b.Reconcile(), ErrShapeMismatch)
		assert.Equal(t, 2, b.Filled())
		_, ok := b.Inputs().Get(inputB)
		assert.False(t, ok)
	})
}

func TestSyncBuffer_Placeholder(t *testing.T) {
	b := NewSyncBuffer([]string{inputA, inputB})
	p := b.Placeholder()
	assert.Equal(t, ndarray.Uint8, p.DType())
	assert.Equal(t, []int{100, 100}, p.Shape())

	b.Put(inputA, full(t, 9, 3, 5))
	p = b.Placeholder()
	assert.Equal(t, ndarray.Float64, p.DType())
	assert.Equal(t, []int{3, 5}, p.Shape())
	assert.True(t, p.Equal(b.Placeholder()), "placeholder is deterministic")
	assertAll(t, p, 0)
}
