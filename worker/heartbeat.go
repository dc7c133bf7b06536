package worker

import (
	"sync/atomic"
	"time"
)

// HeartbeatState tracks the last pulse. Written by the reactor's heartbeat callback, read by the
// liveness monitor; a single atomic timestamp is all the sharing it needs.
type HeartbeatState struct {
	lastPulse atomic.Int64 // unix nanoseconds
	threshold time.Duration
}

// NewHeartbeatState returns a state whose threshold is rate × heartbeatsToDeath.
func NewHeartbeatState(rate time.Duration, heartbeatsToDeath int) *HeartbeatState {
	return &HeartbeatState{threshold: rate * time.Duration(heartbeatsToDeath)}
}

// Beat records a pulse at t.
func (h *HeartbeatState) Beat(t time.Time) { h.lastPulse.Store(t.UnixNano()) }

// LastPulse returns the time of the last pulse.
func (h *HeartbeatState) LastPulse() time.Time { return time.Unix(0, h.lastPulse.Load()) }

// Age returns now minus the last pulse.
func (h *HeartbeatState) Age(now time.Time) time.Duration { return now.Sub(h.LastPulse()) }

// Threshold returns the pulse age at which the worker dies.
func (h *HeartbeatState) Threshold() time.Duration { return h.threshold }

// Expired reports whether the pulse age exceeds the threshold.
func (h *HeartbeatState) Expired(now time.Time) bool { return h.Age(now) > h.threshold }
