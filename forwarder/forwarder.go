package forwarder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/internal/config"
	"github.com/YAMLcase/Heron/internal/mailbox"
	"github.com/YAMLcase/Heron/internal/metrics"
	"github.com/YAMLcase/Heron/transport"
)

// Kind identifies which of the three forwarders an instance is.
type Kind string

const (
	Data       Kind = "data"
	Parameters Kind = "parameters"
	Liveness   Kind = "liveness"
)

// ErrRunning is returned by Run on a forwarder that is already running.
var ErrRunning = errors.New("forwarder: already running")

// Stats is a snapshot of forwarder counters.
type Stats struct {
	Received  uint64
	Forwarded uint64
	Dropped   uint64
	Malformed uint64
}

// Forwarder relays one channel.
type Forwarder struct {
	kind     Kind
	fabric   transport.Fabric
	inbound  string
	outbound string
	logger   *zap.Logger

	box     *mailbox.Mailbox[[][]byte]
	running atomic.Bool
	ready   chan struct{}

	received  atomic.Uint64
	forwarded atomic.Uint64
	malformed atomic.Uint64

	dropLog rate.Sometimes
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Forwarder) { f.logger = l }
}

// New creates a forwarder relaying inbound to outbound.
func New(kind Kind, fabric transport.Fabric, inbound, outbound string, opts ...Option) *Forwarder {
	f := &Forwarder{
		kind:     kind,
		fabric:   fabric,
		inbound:  inbound,
		outbound: outbound,
		logger:   zap.NewNop(),
		box:      mailbox.New[[][]byte](),
		ready:    make(chan struct{}),
		dropLog:  rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("forwarder", string(kind)))
	return f
}

// Kind returns the forwarder kind.
func (f *Forwarder) Kind() Kind { return f.kind }

// Ready is closed once both sides are bound.
func (f *Forwarder) Ready() <-chan struct{} { return f.ready }

// Run binds both sides and relays until ctx is done. Bind failures are returned immediately.
func (f *Forwarder) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	in, err := f.fabric.Listen(ctx, transport.Sub, f.inbound, transport.Subscribe(""))
	if err != nil {
		return fmt.Errorf("forwarder %s: bind inbound: %w", f.kind, err)
	}
	out, err := f.fabric.Listen(ctx, transport.Pub, f.outbound)
	if err != nil {
		_ = in.Close()
		return fmt.Errorf("forwarder %s: bind outbound: %w", f.kind, err)
	}

	f.logger.Info("forwarder started",
		zap.String("inbound", f.inbound),
		zap.String("outbound", f.outbound))
	close(f.ready)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.receiveLoop(gctx, in) })
	g.Go(func() error { return f.publishLoop(gctx, out) })
	g.Go(func() error {
		<-gctx.Done()
		f.box.Close()
		_ = in.Close()
		_ = out.Close()
		return nil
	})

	err = g.Wait()
	s := f.Stats()
	f.logger.Info("forwarder stopped",
		zap.Uint64("received", s.Received),
		zap.Uint64("forwarded", s.Forwarded),
		zap.Uint64("dropped", s.Dropped))
	return err
}

func (f *Forwarder) receiveLoop(ctx context.Context, in transport.Socket) error {
	for {
		frames, err := in.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("forwarder %s: receive: %w", f.kind, err)
		}
		f.received.Add(1)

		t, err := envelope.TopicOf(frames)
		if err != nil {
			f.malformed.Add(1)
			metrics.MalformedMessages.WithLabelValues("forwarder", string(f.kind)).Inc()
			continue
		}
		if f.box.Put(t, frames) {
			metrics.DroppedMessages.WithLabelValues("forwarder", string(f.kind)).Inc()
			f.dropLog.Do(func() {
				f.logger.Debug("slow outbound link, dropped stale message", zap.String("topic", t))
			})
		}
	}
}

func (f *Forwarder) publishLoop(ctx context.Context, out transport.Socket) error {
	for {
		t, frames, err := f.box.Take(ctx)
		if err != nil {
			return nil
		}
		if err := out.Send(frames); err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			f.logger.Warn("publish failed", zap.String("topic", t), zap.Error(err))
			continue
		}
		f.forwarded.Add(1)
		metrics.ForwardedMessages.WithLabelValues(string(f.kind)).Inc()
	}
}

// Stats returns current counters.
func (f *Forwarder) Stats() Stats {
	return Stats{
		Received:  f.received.Load(),
		Forwarded: f.forwarded.Load(),
		Dropped:   f.box.Stats().Overwritten,
		Malformed: f.malformed.Load(),
	}
}

// NewSet builds the three forwarders described by cfg.
func NewSet(cfg config.Config, fabric transport.Fabric, opts ...Option) []*Forwarder {
	return []*Forwarder{
		New(Data, fabric, cfg.Endpoint(cfg.Forwarders.Data.Submit), cfg.Endpoint(cfg.Forwarders.Data.Publish), opts...),
		New(Parameters, fabric, cfg.Endpoint(cfg.Forwarders.Parameters.Submit), cfg.Endpoint(cfg.Forwarders.Parameters.Publish), opts...),
		New(Liveness, fabric, cfg.Endpoint(cfg.Forwarders.Liveness.Submit), cfg.Endpoint(cfg.Forwarders.Liveness.Publish), opts...),
	}
}

// RunAll runs forwarders until ctx is done or one of them fails.
func RunAll(ctx context.Context, forwarders ...*Forwarder) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range forwarders {
		g.Go(func() error { return f.Run(gctx) })
	}
	return g.Wait()
}
