package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/internal/mailbox"
	"github.com/YAMLcase/Heron/internal/metrics"
	"github.com/YAMLcase/Heron/internal/pulsestats"
	"github.com/YAMLcase/Heron/ndarray"
	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/topic"
	"github.com/YAMLcase/Heron/transport"
)

// ExitLivenessLost is the process exit status after liveness loss.
const ExitLivenessLost = 3

const (
	defaultSourceInterval = 100 * time.Millisecond
	pulseWindow           = 32
)

var (
	// ErrLivenessLost is returned by Run when the worker died of a stale heartbeat and the
	// terminator returned.
	ErrLivenessLost = errors.New("worker: liveness lost")

	// ErrConfig is returned by New for an unusable configuration.
	ErrConfig = errors.New("worker: invalid config")
)

// Config describes one worker process.
type Config struct {
	// ParametersTopic is the canonical stage topic; parameters arrive on it and readiness is
	// announced as ParametersTopic##POL.
	ParametersTopic string

	Host  string
	Ports topic.PortSet

	// Inputs are the declared receiving topics, one sync buffer slot each.
	Inputs []string

	Schema params.Schema

	// ParametersEndpoint is the Parameter Forwarder's outbound side.
	ParametersEndpoint string
	// LivenessEndpoint is the Liveness Forwarder's inbound side.
	LivenessEndpoint string

	HeartbeatRate     time.Duration
	HeartbeatsToDeath int

	// SourceInterval paces the compute step of stages without inputs.
	SourceInterval time.Duration
}

func (c Config) validate() error {
	switch {
	case c.HeartbeatRate <= 0:
		return fmt.Errorf("%w: heartbeat rate must be positive", ErrConfig)
	case c.HeartbeatsToDeath < 1:
		return fmt.Errorf("%w: heartbeats to death must be at least 1", ErrConfig)
	case c.ParametersEndpoint == "" || c.LivenessEndpoint == "":
		return fmt.Errorf("%w: forwarder endpoints are required", ErrConfig)
	}
	return nil
}

// Stats is a snapshot of worker counters.
type Stats struct {
	State             State
	Computes          uint64
	Emitted           uint64
	Placeholders      uint64
	Malformed         uint64
	DroppedInputs     uint64
	ParameterRevision uint64
	PulseAge          time.Duration
	Pulses            pulsestats.Stats
	Ready             bool
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithEndOfLife sets the hook run once before the process terminates on liveness loss.
func WithEndOfLife(fn EndOfLifeFunc) Option {
	return func(w *Worker) { w.endOfLife = fn }
}

// WithTerminator replaces process termination after liveness loss. The default flushes the
// logger and calls os.Exit(ExitLivenessLost).
func WithTerminator(fn func(code int)) Option {
	return func(w *Worker) { w.terminate = fn }
}

// WithSink sets the visualization sink. Default: LogSink.
func WithSink(s Sink) Option {
	return func(w *Worker) { w.sink = s }
}

// Worker executes one stage's work function.
//
// Concurrency:
//   - reactor goroutine: data, parameter and heartbeat callbacks, each run to completion in
//     arrival order; the compute step runs here and blocks the reactor for its duration
//   - liveness monitor: independent ticker comparing pulse age to the threshold
//   - readiness publisher: blocks on the first-result channel, sends once
//   - visualizer: owns its own state, driven by commands
//   - one receiver per socket feeding the reactor through depth-1 mailboxes
//
// The parameter store and sync buffer are only touched by the reactor.
type Worker struct {
	cfg      Config
	identity topic.StageIdentity
	fabric   transport.Fabric
	work     WorkFunc

	endOfLife EndOfLifeFunc
	terminate func(code int)
	logger    *zap.Logger
	sink      Sink

	lifecycle *lifecycle
	buffer    *SyncBuffer
	params    *params.Store
	heartbeat *HeartbeatState
	pulses    *pulsestats.Window
	vis       *Visualizer
	wctx      *Context

	dataBox  *mailbox.Mailbox[[][]byte]
	paramBox *mailbox.Mailbox[[]byte]
	pulseCh  chan struct{}

	firstResult     chan struct{}
	firstResultOnce sync.Once
	ready           atomic.Bool

	dead      chan struct{}
	deathOnce sync.Once

	push transport.Socket

	computes     atomic.Uint64
	emitted      atomic.Uint64
	placeholders atomic.Uint64
	malformed    atomic.Uint64

	transientLog rate.Sometimes
	malformedLog rate.Sometimes
}

// New validates cfg and prepares a worker. Nothing is bound until Run.
func New(cfg Config, fabric transport.Fabric, work WorkFunc, opts ...Option) (*Worker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	id, err := topic.ParseStage(cfg.ParametersTopic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if work == nil {
		return nil, fmt.Errorf("%w: nil work function", ErrConfig)
	}
	if cfg.SourceInterval <= 0 {
		cfg.SourceInterval = defaultSourceInterval
	}

	w := &Worker{
		cfg:          cfg,
		identity:     id,
		fabric:       fabric,
		work:         work,
		endOfLife:    func(*Context) {},
		logger:       zap.NewNop(),
		buffer:       NewSyncBuffer(cfg.Inputs),
		params:       params.NewStore(cfg.Schema.Defaults()),
		heartbeat:    NewHeartbeatState(cfg.HeartbeatRate, cfg.HeartbeatsToDeath),
		pulses:       pulsestats.NewWindow(pulseWindow, cfg.HeartbeatRate),
		dataBox:      mailbox.New[[][]byte](),
		paramBox:     mailbox.New[[]byte](),
		pulseCh:      make(chan struct{}, 1),
		firstResult:  make(chan struct{}),
		dead:         make(chan struct{}),
		transientLog: rate.Sometimes{Interval: 5 * time.Second},
		malformedLog: rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("op", id.OpName), zap.Int("node", id.NodeIndex))
	if w.terminate == nil {
		w.terminate = func(code int) {
			_ = w.logger.Sync()
			os.Exit(code)
		}
	}
	if w.sink == nil {
		w.sink = LogSink{Logger: w.logger}
	}

	w.lifecycle = newLifecycle(id.Topic(), w.logger)
	w.vis = newVisualizer(id.Topic(), w.sink, w.logger)
	w.wctx = &Context{Identity: id, Logger: w.logger, w: w}
	return w, nil
}

// Identity returns the stage identity.
func (w *Worker) Identity() topic.StageIdentity { return w.identity }

// Context returns the handle passed to the work function.
func (w *Worker) Context() *Context { return w.wctx }

// State returns the lifecycle state.
func (w *Worker) State() State { return w.lifecycle.current() }

// Dead is closed when the worker enters the dead state.
func (w *Worker) Dead() <-chan struct{} { return w.dead }

// Parameters returns the live parameter vector.
func (w *Worker) Parameters() params.Vector { return w.params.Load() }

// Stats returns current counters.
func (w *Worker) Stats() Stats {
	return Stats{
		State:             w.State(),
		Computes:          w.computes.Load(),
		Emitted:           w.emitted.Load(),
		Placeholders:      w.placeholders.Load(),
		Malformed:         w.malformed.Load(),
		DroppedInputs:     w.dataBox.Stats().Overwritten,
		ParameterRevision: w.params.Revision(),
		PulseAge:          w.heartbeat.Age(time.Now()),
		Pulses:            w.pulses.Stats(),
		Ready:             w.ready.Load(),
	}
}

type sockets struct {
	pull, heartbeat, params, liveness transport.Socket
}

func (s sockets) closeAll(push transport.Socket) {
	for _, sock := range []transport.Socket{s.pull, push, s.heartbeat, s.params, s.liveness} {
		if sock != nil {
			_ = sock.Close()
		}
	}
}

func (w *Worker) bind(ctx context.Context) (sockets, error) {
	var s sockets
	var err error
	fail := func(what string, err error) (sockets, error) {
		s.closeAll(w.push)
		w.push = nil
		return sockets{}, fmt.Errorf("worker: %s: %w", what, err)
	}

	if s.pull, err = w.fabric.Listen(ctx, transport.Pull, transport.TCP(w.cfg.Host, w.cfg.Ports.Pull)); err != nil {
		return fail("bind data pull", err)
	}
	if w.push, err = w.fabric.Dial(ctx, transport.Push, transport.TCP(w.cfg.Host, w.cfg.Ports.Push)); err != nil {
		return fail("connect data push", err)
	}
	if s.heartbeat, err = w.fabric.Listen(ctx, transport.Pull, transport.TCP(w.cfg.Host, w.cfg.Ports.Heartbeat)); err != nil {
		return fail("bind heartbeat pull", err)
	}
	if s.params, err = w.fabric.Dial(ctx, transport.Sub, w.cfg.ParametersEndpoint,
		transport.Subscribe(w.cfg.ParametersTopic)); err != nil {
		return fail("subscribe parameters", err)
	}
	if s.liveness, err = w.fabric.Dial(ctx, transport.Pub, w.cfg.LivenessEndpoint); err != nil {
		return fail("connect liveness", err)
	}
	return s, nil
}

// Run binds the worker's channels and serves until ctx is done or liveness is lost.
//
// A bind or connect failure is returned immediately with nothing left bound. After liveness
// loss the end-of-life hook runs, the terminator is called and, if it returns, Run returns
// ErrLivenessLost.
func (w *Worker) Run(ctx context.Context) error {
	socks, err := w.bind(ctx)
	if err != nil {
		return err
	}

	w.heartbeat.Beat(time.Now())
	if err := w.lifecycle.fire(ctx, eventBound); err != nil {
		socks.closeAll(w.push)
		return fmt.Errorf("worker: %w", err)
	}
	w.logger.Info("worker started",
		zap.Int("port", w.cfg.Ports.Pull),
		zap.Strings("inputs", w.cfg.Inputs),
		zap.Duration("liveness_threshold", w.heartbeat.Threshold()))

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { w.receive(gctx, socks.pull, "data", w.putData); return nil })
	g.Go(func() error { w.receive(gctx, socks.heartbeat, "heartbeat", w.putPulse); return nil })
	g.Go(func() error { w.receive(gctx, socks.params, "parameters", w.putParameters); return nil })
	g.Go(func() error { w.monitorLiveness(gctx); return nil })
	g.Go(func() error { w.publishReadiness(gctx, socks.liveness); return nil })
	g.Go(func() error { w.vis.run(gctx); return nil })

	w.reactor(runCtx)

	cancel()
	socks.closeAll(w.push)
	w.dataBox.Close()
	w.paramBox.Close()
	_ = g.Wait()

	select {
	case <-w.dead:
		return ErrLivenessLost
	default:
	}
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) receive(ctx context.Context, sock transport.Socket, channel string, put func([][]byte)) {
	for {
		frames, err := sock.Recv()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, transport.ErrClosed) {
				w.logger.Warn("receive failed", zap.String("channel", channel), zap.Error(err))
			}
			return
		}
		put(frames)
	}
}

func (w *Worker) putData(frames [][]byte) {
	t, err := envelope.TopicOf(frames)
	if err != nil {
		w.dropMalformed("data", err)
		return
	}
	if w.dataBox.Put(t, frames) {
		metrics.DroppedMessages.WithLabelValues("worker", "data").Inc()
	}
}

func (w *Worker) putPulse(frames [][]byte) {
	if !envelope.IsPulse(frames) {
		w.dropMalformed("heartbeat", envelope.ErrMalformed)
		return
	}
	select {
	case w.pulseCh <- struct{}{}:
	default:
	}
}

func (w *Worker) putParameters(frames [][]byte) {
	t, payload, err := envelope.ParseParameter(frames)
	if err != nil {
		w.dropMalformed("parameters", err)
		return
	}
	if !topic.Matches(w.cfg.ParametersTopic, t) {
		return
	}
	w.paramBox.Put(t, payload)
}

func (w *Worker) dropMalformed(channel string, err error) {
	w.malformed.Add(1)
	metrics.MalformedMessages.WithLabelValues("worker", channel).Inc()
	w.malformedLog.Do(func() {
		w.logger.Warn("dropped malformed message", zap.String("channel", channel), zap.Error(err))
	})
}

func (w *Worker) isDead() bool {
	select {
	case <-w.dead:
		return true
	default:
		return false
	}
}

// reactor runs every callback to completion, one at a time.
func (w *Worker) reactor(ctx context.Context) {
	var tick <-chan time.Time
	if w.buffer.Len() == 0 {
		t := time.NewTicker(w.cfg.SourceInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.dead:
			return
		case <-w.pulseCh:
			w.onPulse(time.Now())
		case <-w.paramBox.Ready():
			for {
				_, payload, ok := w.paramBox.TryTake()
				if !ok || w.isDead() {
					break
				}
				w.onParameters(payload)
			}
		case <-w.dataBox.Ready():
			for {
				_, frames, ok := w.dataBox.TryTake()
				if !ok || w.isDead() {
					break
				}
				w.onData(ctx, frames)
			}
		case <-tick:
			w.step(ctx)
		}
	}
}

func (w *Worker) onPulse(now time.Time) {
	w.heartbeat.Beat(now)
	w.pulses.Record(now)
}

// onParameters replaces the live vector when payload decodes against the schema.
func (w *Worker) onParameters(payload []byte) {
	stage := w.identity.Topic()
	v, err := w.cfg.Schema.Decode(payload)
	switch {
	case errors.Is(err, params.ErrNullVector):
		metrics.ParameterUpdates.WithLabelValues(stage, "ignored").Inc()
		return
	case err != nil:
		metrics.ParameterUpdates.WithLabelValues(stage, "rejected").Inc()
		w.logger.Warn("parameter update rejected, keeping previous vector", zap.Error(err))
		return
	}
	rev := w.params.Replace(v)
	metrics.ParameterUpdates.WithLabelValues(stage, "applied").Inc()
	w.logger.Debug("parameters updated", zap.Uint64("revision", rev), zap.Any("values", v.Values()))
}

func (w *Worker) onData(ctx context.Context, frames [][]byte) {
	msg, err := envelope.Parse(frames)
	if err != nil {
		w.dropMalformed("data", err)
		return
	}
	arr, t, err := envelope.Decode(msg)
	if err != nil {
		w.dropMalformed("data", err)
		return
	}
	if w.buffer.Put(t, arr) == 0 {
		w.logger.Debug("data for undeclared input ignored", zap.String("topic", t))
		return
	}
	w.step(ctx)
}

// step advances the lifecycle after an input event and runs the compute step when ready.
func (w *Worker) step(ctx context.Context) {
	switch w.State() {
	case StateWaitingForInput:
		if !w.buffer.Complete() {
			return
		}
		if err := w.lifecycle.fire(ctx, eventInputsFilled); err != nil {
			return
		}
		w.compute()
	case StateReady:
		w.compute()
	}
}

func (w *Worker) compute() {
	stage := w.identity.Topic()

	if err := w.buffer.Reconcile(); err != nil {
		w.logger.Error("input shapes cannot be reconciled", zap.Error(err))
	}
	if !w.buffer.Complete() {
		w.placeholders.Add(1)
		metrics.Computes.WithLabelValues(stage, "placeholder").Inc()
		w.transientLog.Do(func() {
			w.logger.Warn("input slot empty at compute time, emitting placeholder",
				zap.Int("filled", w.buffer.Filled()),
				zap.Int("slots", w.buffer.Len()))
		})
		w.emit([]ndarray.Array{w.buffer.Placeholder()})
		return
	}

	start := time.Now()
	out, err := w.work(w.wctx, w.buffer.Inputs(), w.params.Load())
	metrics.ComputeSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	w.computes.Add(1)
	if err != nil {
		metrics.Computes.WithLabelValues(stage, "error").Inc()
		w.logger.Error("work function failed", zap.Error(err))
		return
	}
	metrics.Computes.WithLabelValues(stage, "ok").Inc()

	if w.emit(out) > 0 {
		w.firstResultOnce.Do(func() { close(w.firstResult) })
	}
}

// emit pushes each non-empty output as output k and returns how many were sent.
func (w *Worker) emit(out []ndarray.Array) int {
	sent := 0
	for k, arr := range out {
		if arr.IsZero() {
			continue
		}
		if w.isDead() {
			return sent
		}
		msg, err := envelope.Encode(arr, strconv.Itoa(k))
		if err != nil {
			w.logger.Error("encode output", zap.Int("output", k), zap.Error(err))
			continue
		}
		frames, err := msg.Frames()
		if err != nil {
			w.logger.Error("encode output", zap.Int("output", k), zap.Error(err))
			continue
		}
		if err := w.push.Send(frames); err != nil {
			w.transientLog.Do(func() {
				w.logger.Warn("push to supervisor failed", zap.Error(err))
			})
			continue
		}
		w.emitted.Add(1)
		sent++
	}
	return sent
}

// monitorLiveness checks the pulse age once per heartbeat period.
func (w *Worker) monitorLiveness(ctx context.Context) {
	t := time.NewTicker(w.cfg.HeartbeatRate)
	defer t.Stop()
	stage := w.identity.Topic()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			age := w.heartbeat.Age(now)
			metrics.PulseAgeSeconds.WithLabelValues(stage).Set(age.Seconds())
			if age > w.heartbeat.Threshold() {
				w.die(ctx, age)
				return
			}
		}
	}
}

// die is unconditional: no retry, no acknowledgment to the supervisor.
func (w *Worker) die(ctx context.Context, age time.Duration) {
	w.deathOnce.Do(func() {
		if err := w.lifecycle.fire(context.WithoutCancel(ctx), eventLivenessLost); err != nil {
			w.logger.Error("dead transition failed", zap.Error(err))
		}
		close(w.dead)

		ps := w.pulses.Stats()
		w.logger.Error("heartbeat lost, terminating",
			zap.Duration("pulse_age", age),
			zap.Duration("threshold", w.heartbeat.Threshold()),
			zap.Duration("pulse_interval_mean", ps.IntervalMean),
			zap.Duration("pulse_jitter_max", ps.JitterMax))

		w.endOfLife(w.wctx)
		w.terminate(ExitLivenessLost)
	})
}

// publishReadiness announces the first non-null result once.
func (w *Worker) publishReadiness(ctx context.Context, sock transport.Socket) {
	select {
	case <-ctx.Done():
		return
	case <-w.dead:
		return
	case <-w.firstResult:
	}
	if err := sock.Send(envelope.ReadinessFrames(w.cfg.ParametersTopic)); err != nil {
		w.logger.Warn("readiness signal failed", zap.Error(err))
		return
	}
	w.ready.Store(true)
	w.logger.Info("worker ready", zap.String("topic", topic.Readiness(w.cfg.ParametersTopic)))
}
