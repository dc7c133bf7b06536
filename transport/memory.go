package transport

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

const memoryQueueDepth = 256

// Memory is an in-process fabric. Endpoints are plain map keys, so any string works.
//
// Delivery rules follow ZeroMQ: PUSH delivers to one connected PULL (round robin), PUB delivers
// to every connected SUB whose subscription prefix matches the first frame, messages sent while
// no receiver is attached are dropped, and a full receiver queue drops the new message.
type Memory struct {
	mu   sync.Mutex
	hubs map[string]*hub
}

// NewMemory returns an empty in-process fabric.
func NewMemory() *Memory {
	return &Memory{hubs: make(map[string]*hub)}
}

type hub struct {
	mu        sync.Mutex
	bound     bool
	receivers []*memSocket
	next      int
}

func (m *Memory) hub(endpoint string) *hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[endpoint]
	if !ok {
		h = &hub{}
		m.hubs[endpoint] = h
	}
	return h
}

// Listen binds endpoint. Binding an endpoint twice fails with ErrAddressInUse.
func (m *Memory) Listen(_ context.Context, p Pattern, endpoint string, opts ...SocketOption) (Socket, error) {
	h := m.hub(endpoint)
	h.mu.Lock()
	if h.bound {
		h.mu.Unlock()
		return nil, fmt.Errorf("transport: listen %s %s: %w", p, endpoint, ErrAddressInUse)
	}
	h.bound = true
	h.mu.Unlock()

	return m.attach(h, p, true, opts), nil
}

// Dial connects to endpoint. The peer may bind before or after.
func (m *Memory) Dial(_ context.Context, p Pattern, endpoint string, opts ...SocketOption) (Socket, error) {
	return m.attach(m.hub(endpoint), p, false, opts), nil
}

func (m *Memory) attach(h *hub, p Pattern, bound bool, opts []SocketOption) *memSocket {
	s := &memSocket{
		pattern: p,
		hub:     h,
		bound:   bound,
		filters: buildOptions(opts).subscriptions,
		inbox:   make(chan [][]byte, memoryQueueDepth),
		closed:  make(chan struct{}),
	}
	if p.canRecv() {
		h.mu.Lock()
		h.receivers = append(h.receivers, s)
		h.mu.Unlock()
	}
	return s
}

type memSocket struct {
	pattern Pattern
	hub     *hub
	bound   bool
	filters []string

	inbox     chan [][]byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *memSocket) accepts(t string) bool {
	for _, f := range s.filters {
		if strings.HasPrefix(t, f) {
			return true
		}
	}
	return false
}

func (s *memSocket) deliver(frames [][]byte) {
	select {
	case <-s.closed:
	case s.inbox <- frames:
	default:
	}
}

func (s *memSocket) Send(frames [][]byte) error {
	if !s.pattern.canSend() {
		return fmt.Errorf("%w: send on %s", ErrPattern, s.pattern)
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	msg := make([][]byte, len(frames))
	for i, f := range frames {
		msg[i] = slices.Clone(f)
	}

	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	switch s.pattern {
	case Push:
		var pulls []*memSocket
		for _, r := range h.receivers {
			if r.pattern == Pull {
				pulls = append(pulls, r)
			}
		}
		if len(pulls) == 0 {
			return nil
		}
		h.next = (h.next + 1) % len(pulls)
		pulls[h.next].deliver(msg)
	case Pub:
		var t string
		if len(msg) > 0 {
			t = string(msg[0])
		}
		for _, r := range h.receivers {
			if r.pattern == Sub && r.accepts(t) {
				r.deliver(msg)
			}
		}
	}
	return nil
}

func (s *memSocket) Recv() ([][]byte, error) {
	if !s.pattern.canRecv() {
		return nil, fmt.Errorf("%w: recv on %s", ErrPattern, s.pattern)
	}
	select {
	case <-s.closed:
		return nil, ErrClosed
	case msg := <-s.inbox:
		return msg, nil
	}
}

func (s *memSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if s.bound {
			h.bound = false
		}
		h.receivers = slices.DeleteFunc(h.receivers, func(r *memSocket) bool { return r == s })
	})
	return nil
}
