// Package mailbox implements the depth-1, latest-wins link used at every Heron hop.
//
// A Mailbox holds at most one unconsumed value per key (a topic). Publishing to a key that
// still holds an unconsumed value overwrites it and counts a drop, so a slow consumer only ever
// observes the newest message per topic and never an unbounded backlog.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrClosed = errors.New("mailbox: closed")

// Stats is a snapshot of mailbox counters.
type Stats struct {
	Put         uint64
	Taken       uint64
	Overwritten uint64
	Pending     int
}

// Mailbox is a keyed single-slot buffer with overwrite policy.
//
// Architecture:
//   - One slot per key (pending[key])
//   - Overwrite policy (new value replaces unconsumed value, counted in Overwritten)
//   - Keys are delivered in order of their first unconsumed arrival
//   - Ready() is a selectable wake-up signal for reactor loops
//
// Thread-safety:
//   - Put: any number of producers
//   - TryTake/Take: intended for a single consumer goroutine
type Mailbox[T any] struct {
	mu      sync.Mutex
	order   []string
	pending map[string]T
	closed  bool

	ready chan struct{} // capacity 1, coalesces wake-ups
	done  chan struct{}

	put         atomic.Uint64
	taken       atomic.Uint64
	overwritten atomic.Uint64
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		pending: make(map[string]T),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Put stores v under key (non-blocking). It reports whether an unconsumed value was
// overwritten. Put after Close is a no-op.
func (m *Mailbox[T]) Put(key string, v T) (overwrote bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, overwrote = m.pending[key]; !overwrote {
		m.order = append(m.order, key)
	}
	m.pending[key] = v
	m.mu.Unlock()

	m.put.Add(1)
	if overwrote {
		m.overwritten.Add(1)
	}

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return overwrote
}

// Ready fires after Put. A receive means "there may be values": drain with TryTake until it
// reports false.
func (m *Mailbox[T]) Ready() <-chan struct{} { return m.ready }

// Done is closed by Close.
func (m *Mailbox[T]) Done() <-chan struct{} { return m.done }

// TryTake removes and returns the oldest pending value without blocking.
func (m *Mailbox[T]) TryTake() (key string, v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return "", v, false
	}
	key = m.order[0]
	m.order = m.order[1:]
	v = m.pending[key]
	delete(m.pending, key)
	m.taken.Add(1)
	return key, v, true
}

// Take blocks until a value is available, ctx is done, or the mailbox is closed.
func (m *Mailbox[T]) Take(ctx context.Context) (string, T, error) {
	for {
		if key, v, ok := m.TryTake(); ok {
			return key, v, nil
		}
		var zero T
		select {
		case <-m.ready:
		case <-m.done:
			return "", zero, ErrClosed
		case <-ctx.Done():
			return "", zero, ctx.Err()
		}
	}
}

// Close discards pending values and wakes blocked consumers. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.order = nil
	clear(m.pending)
	close(m.done)
}

// Stats returns current counters.
func (m *Mailbox[T]) Stats() Stats {
	m.mu.Lock()
	pending := len(m.order)
	m.mu.Unlock()
	return Stats{
		Put:         m.put.Load(),
		Taken:       m.taken.Load(),
		Overwritten: m.overwritten.Load(),
		Pending:     pending,
	}
}
