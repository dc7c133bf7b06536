// Package pulsestats keeps a bounded window of heartbeat arrival times and summarizes the
// inter-pulse interval.
package pulsestats

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// jitterStabilityThreshold is the maximum mean jitter, as a fraction of the expected interval,
// for the pulse stream to count as stable.
const jitterStabilityThreshold = 0.20

// Stats summarizes the pulse window.
type Stats struct {
	Pulses         int
	IntervalMean   time.Duration
	IntervalStdDev time.Duration
	JitterMean     time.Duration
	JitterMax      time.Duration
	IsStable       bool
}

// Window records the most recent pulse times. Safe for concurrent use.
type Window struct {
	expected time.Duration

	mu    sync.Mutex
	times []time.Time
	next  int
	full  bool
}

// NewWindow keeps the last size arrivals of a stream expected every expected.
func NewWindow(size int, expected time.Duration) *Window {
	if size < 2 {
		size = 2
	}
	return &Window{expected: expected, times: make([]time.Time, size)}
}

// Record adds an arrival.
func (w *Window) Record(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.next == 0 {
		w.full = true
	}
}

func (w *Window) ordered() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.full {
		return append([]time.Time(nil), w.times[:w.next]...)
	}
	out := make([]time.Time, 0, len(w.times))
	out = append(out, w.times[w.next:]...)
	return append(out, w.times[:w.next]...)
}

// Stats computes interval and jitter statistics over the window.
//
// Jitter is |interval - expected| per consecutive pair. The stream is stable when the mean
// jitter stays under 20% of the expected interval.
func (w *Window) Stats() Stats {
	times := w.ordered()
	s := Stats{Pulses: len(times)}
	if len(times) < 2 {
		return s
	}

	intervals := make([]float64, 0, len(times)-1)
	jitter := make([]float64, 0, len(times)-1)
	expected := w.expected.Seconds()
	maxJitter := 0.0
	for i := 1; i < len(times); i++ {
		iv := times[i].Sub(times[i-1]).Seconds()
		intervals = append(intervals, iv)
		j := math.Abs(iv - expected)
		jitter = append(jitter, j)
		maxJitter = math.Max(maxJitter, j)
	}

	mean, std := stat.MeanStdDev(intervals, nil)
	if len(intervals) < 2 {
		std = 0
	}
	jMean := stat.Mean(jitter, nil)

	s.IntervalMean = seconds(mean)
	s.IntervalStdDev = seconds(std)
	s.JitterMean = seconds(jMean)
	s.JitterMax = seconds(maxJitter)
	s.IsStable = expected > 0 && jMean < expected*jitterStabilityThreshold
	return s
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
