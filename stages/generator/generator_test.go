package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/worker"
)

func defaults(t *testing.T) params.Schema {
	t.Helper()
	s, err := Descriptor().Schema()
	require.NoError(t, err)
	return s
}

func TestGenerator_FramesMove(t *testing.T) {
	s := defaults(t)
	v, err := s.Coerce([]any{false, 4, 2, 1})
	require.NoError(t, err)

	g := &Generator{}
	first, err := g.Work(nil, worker.Inputs{}, v)
	require.NoError(t, err)
	second, err := g.Work(nil, worker.Inputs{}, v)
	require.NoError(t, err)

	require.Len(t, first, 1)
	assert.Equal(t, []int{2, 4}, first[0].Shape())
	assert.Equal(t, []float64{0, 85, 170, 255, 0, 85, 170, 255}, first[0].Float64s())
	assert.Equal(t, []float64{85, 170, 255, 0, 85, 170, 255, 0}, second[0].Float64s())
}

func TestGenerator_RejectsBadSize(t *testing.T) {
	v, err := defaults(t).Coerce([]any{false, 0, 10, 1})
	require.NoError(t, err)
	_, err = (&Generator{}).Work(nil, worker.Inputs{}, v)
	require.Error(t, err)
}
