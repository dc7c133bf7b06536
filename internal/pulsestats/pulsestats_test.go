package pulsestats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats_SteadyStream(t *testing.T) {
	w := NewWindow(10, 100*time.Millisecond)
	start := time.Unix(0, 0)
	for i := 0; i < 25; i++ {
		w.Record(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}

	s := w.Stats()
	assert.Equal(t, 10, s.Pulses)
	assert.InDelta(t, float64(100*time.Millisecond), float64(s.IntervalMean), float64(time.Microsecond))
	assert.Less(t, s.IntervalStdDev, time.Microsecond)
	assert.Less(t, s.JitterMax, time.Microsecond)
	assert.True(t, s.IsStable)
}

func TestStats_JitteryStream(t *testing.T) {
	w := NewWindow(8, 100*time.Millisecond)
	at := time.Unix(0, 0)
	for _, gap := range []time.Duration{0, 50, 150, 40, 160, 100} {
		at = at.Add(gap * time.Millisecond)
		w.Record(at)
	}

	s := w.Stats()
	assert.Equal(t, 6, s.Pulses)
	assert.InDelta(t, float64(60*time.Millisecond), float64(s.JitterMax), float64(time.Microsecond))
	assert.False(t, s.IsStable)
}

func TestStats_TooFewPulses(t *testing.T) {
	w := NewWindow(4, time.Second)
	assert.Equal(t, Stats{}, w.Stats())
	w.Record(time.Now())
	assert.Equal(t, Stats{Pulses: 1}, w.Stats())
}
