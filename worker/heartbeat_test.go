package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/ndarray"
)

func TestHeartbeatState(t *testing.T) {
	h := NewHeartbeatState(time.Second, 3)
	assert.Equal(t, 3*time.Second, h.Threshold())

	t0 := time.Unix(1000, 0)
	h.Beat(t0)
	assert.Equal(t, t0, h.LastPulse())
	assert.False(t, h.Expired(t0.Add(3*time.Second)), "age equal to threshold is still alive")
	assert.True(t, h.Expired(t0.Add(3*time.Second+time.Nanosecond)))
}

func TestPNGSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewPNGSink(dir)
	require.NoError(t, err)

	gray, _ := ndarray.Full(ndarray.Float64, 300, 4, 6)
	rgb, _ := ndarray.Full(ndarray.Uint8, 10, 2, 2, 3)
	bad, _ := ndarray.Zeros(ndarray.Uint8, 2, 2, 2)

	require.NoError(t, sink.Show("g##Canny##0", gray))
	require.NoError(t, sink.Show("g##Canny##0", rgb))
	assert.Error(t, sink.Show("g##Canny##0", bad))
	assert.Equal(t, uint64(2), sink.Saved())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, ".png", filepath.Ext(files[0].Name()))
	assert.NotContains(t, files[0].Name(), "#")
}
