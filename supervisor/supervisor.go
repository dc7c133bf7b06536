package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/internal/mailbox"
	"github.com/YAMLcase/Heron/internal/metrics"
	"github.com/YAMLcase/Heron/topic"
	"github.com/YAMLcase/Heron/transport"
)

const workerExitTimeout = 5 * time.Second

var (
	// ErrWorkerExited is returned by Run when the worker process ended on its own.
	ErrWorkerExited = errors.New("supervisor: worker exited")

	// ErrRunning is returned by Run on a supervisor that is already running.
	ErrRunning = errors.New("supervisor: already running")

	// ErrConfig is returned by New for an unusable configuration.
	ErrConfig = errors.New("supervisor: invalid config")
)

// Config describes one stage's supervisor.
type Config struct {
	// StateTopic is the canonical stage topic. The worker receives parameters on it.
	StateTopic string

	Host  string
	Ports topic.PortSet

	ReceivingTopics []string
	SendingTopics   []string

	// DataInEndpoint is the Data Forwarder's outbound side, DataOutEndpoint its inbound side.
	DataInEndpoint  string
	DataOutEndpoint string
	// ParametersEndpoint is the Parameter Forwarder's outbound side.
	ParametersEndpoint string

	HeartbeatRate  time.Duration
	SampleInterval time.Duration

	Worker Command
}

func (c Config) validate() error {
	switch {
	case c.HeartbeatRate <= 0:
		return fmt.Errorf("%w: heartbeat rate must be positive", ErrConfig)
	case c.DataInEndpoint == "" || c.DataOutEndpoint == "" || c.ParametersEndpoint == "":
		return fmt.Errorf("%w: forwarder endpoints are required", ErrConfig)
	case c.Worker.Path == "":
		return fmt.Errorf("%w: worker executable is required", ErrConfig)
	}
	return nil
}

// Stats is a snapshot of supervisor counters.
type Stats struct {
	WorkerPid   int
	RelayedIn   uint64
	RelayedOut  uint64
	DroppedIn   uint64
	DroppedOut  uint64
	Unrouted    uint64
	Malformed   uint64
	Pulses      uint64
	Parameters  uint64
	LastSample  ResourceSample
	WorkerAlive bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

// Supervisor spawns one worker and relays its traffic.
type Supervisor struct {
	cfg      Config
	identity topic.StageIdentity
	fabric   transport.Fabric
	launcher Launcher
	logger   *zap.Logger

	inBox  *mailbox.Mailbox[[][]byte]
	outBox *mailbox.Mailbox[[][]byte]

	running atomic.Bool
	ready   chan struct{}
	alive   atomic.Bool
	pid     atomic.Int64

	relayedIn  atomic.Uint64
	relayedOut atomic.Uint64
	unrouted   atomic.Uint64
	malformed  atomic.Uint64
	pulses     atomic.Uint64
	parameters atomic.Uint64
	lastSample atomic.Pointer[ResourceSample]

	dropLog rate.Sometimes
}

// New validates cfg. Nothing is bound until Run.
func New(cfg Config, fabric transport.Fabric, launcher Launcher, opts ...Option) (*Supervisor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	id, err := topic.ParseStage(cfg.StateTopic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	s := &Supervisor{
		cfg:      cfg,
		identity: id,
		fabric:   fabric,
		launcher: launcher,
		logger:   zap.NewNop(),
		inBox:    mailbox.New[[][]byte](),
		outBox:   mailbox.New[[][]byte](),
		ready:    make(chan struct{}),
		dropLog:  rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("op", id.OpName), zap.Int("node", id.NodeIndex))
	return s, nil
}

// Identity returns the stage identity.
func (s *Supervisor) Identity() topic.StageIdentity { return s.identity }

// Ready is closed once every channel is bound and the worker is running.
func (s *Supervisor) Ready() <-chan struct{} { return s.ready }

// WorkerAlive reports whether the worker process is running.
func (s *Supervisor) WorkerAlive() bool { return s.alive.Load() }

// Stats returns current counters.
func (s *Supervisor) Stats() Stats {
	st := Stats{
		WorkerPid:   int(s.pid.Load()),
		RelayedIn:   s.relayedIn.Load(),
		RelayedOut:  s.relayedOut.Load(),
		DroppedIn:   s.inBox.Stats().Overwritten,
		DroppedOut:  s.outBox.Stats().Overwritten,
		Unrouted:    s.unrouted.Load(),
		Malformed:   s.malformed.Load(),
		Pulses:      s.pulses.Load(),
		Parameters:  s.parameters.Load(),
		WorkerAlive: s.alive.Load(),
	}
	if sample := s.lastSample.Load(); sample != nil {
		st.LastSample = *sample
	}
	return st
}

// WorkerArgs returns the launch flags appended to the worker command.
func (s *Supervisor) WorkerArgs() []string {
	args := append([]string(nil), s.cfg.Worker.Args...)
	return append(args,
		"--port", strconv.Itoa(s.cfg.Ports.Pull),
		"--parameters-topic", s.cfg.StateTopic,
		"--inputs", strings.Join(s.cfg.ReceivingTopics, ","),
		"--stage", s.identity.OpName,
	)
}

type sockets struct {
	dataIn, dataOut, params, toWorker, fromWorker, pulse transport.Socket
}

// onKill releases every bound or connected channel.
func (s sockets) onKill() {
	for _, sock := range []transport.Socket{s.dataIn, s.dataOut, s.params, s.toWorker, s.fromWorker, s.pulse} {
		if sock != nil {
			_ = sock.Close()
		}
	}
}

func (s *Supervisor) bind(ctx context.Context) (sockets, error) {
	var socks sockets
	var err error
	fail := func(what string, err error) (sockets, error) {
		socks.onKill()
		return sockets{}, fmt.Errorf("supervisor: %s: %w", what, err)
	}

	if socks.fromWorker, err = s.fabric.Listen(ctx, transport.Pull, transport.TCP(s.cfg.Host, s.cfg.Ports.Push)); err != nil {
		return fail("bind worker pull", err)
	}

	subs := make([]transport.SocketOption, 0, len(s.cfg.ReceivingTopics))
	for _, t := range s.cfg.ReceivingTopics {
		subs = append(subs, transport.Subscribe(t))
	}
	if socks.dataIn, err = s.fabric.Dial(ctx, transport.Sub, s.cfg.DataInEndpoint, subs...); err != nil {
		return fail("subscribe data", err)
	}
	if socks.dataOut, err = s.fabric.Dial(ctx, transport.Pub, s.cfg.DataOutEndpoint); err != nil {
		return fail("connect data out", err)
	}
	if socks.params, err = s.fabric.Dial(ctx, transport.Sub, s.cfg.ParametersEndpoint,
		transport.Subscribe(s.cfg.StateTopic)); err != nil {
		return fail("subscribe parameters", err)
	}
	return socks, nil
}

// connectWorker dials the two channels the worker binds. It runs after the spawn, since a ZeroMQ
// dial keeps retrying until the worker has bound P and P+2 or the dial timeout runs out.
func (s *Supervisor) connectWorker(ctx context.Context, socks *sockets) error {
	var err error
	if socks.toWorker, err = s.fabric.Dial(ctx, transport.Push, transport.TCP(s.cfg.Host, s.cfg.Ports.Pull)); err != nil {
		return fmt.Errorf("supervisor: connect worker push: %w", err)
	}
	if socks.pulse, err = s.fabric.Dial(ctx, transport.Push, transport.TCP(s.cfg.Host, s.cfg.Ports.Heartbeat)); err != nil {
		return fmt.Errorf("supervisor: connect heartbeat: %w", err)
	}
	return nil
}

// Run binds, spawns the worker, connects to it and relays until ctx is done or the worker exits.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}

	socks, err := s.bind(ctx)
	if err != nil {
		return err
	}

	cmd := Command{Path: s.cfg.Worker.Path, Args: s.WorkerArgs(), Env: s.cfg.Worker.Env}
	proc, err := s.launcher.Launch(ctx, cmd)
	if err != nil {
		socks.onKill()
		return fmt.Errorf("supervisor: spawn worker: %w", err)
	}
	s.pid.Store(int64(proc.Pid()))
	s.alive.Store(true)
	exited := make(chan error, 1)
	go func() {
		err := proc.Wait()
		s.alive.Store(false)
		exited <- err
	}()

	if err := s.connectWorker(ctx, &socks); err != nil {
		socks.onKill()
		s.killWorker(proc, exited)
		return err
	}

	s.logger.Info("supervisor started",
		zap.Int("pid", proc.Pid()),
		zap.Int("port", s.cfg.Ports.Pull),
		zap.Strings("receiving", s.cfg.ReceivingTopics),
		zap.Strings("sending", s.cfg.SendingTopics))
	close(s.ready)

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { s.receive(gctx, socks.dataIn, "data", s.putUpstream); return nil })
	g.Go(func() error { s.receive(gctx, socks.fromWorker, "worker", s.putOutput); return nil })
	g.Go(func() error { s.receive(gctx, socks.params, "parameters", s.observeParameters); return nil })
	g.Go(func() error { s.heartbeat(gctx, socks.pulse); return nil })
	g.Go(func() error { s.sample(gctx, proc.Pid()); return nil })

	workerDone, werr := s.relay(runCtx, socks, exited)

	cancel()
	socks.onKill()
	s.inBox.Close()
	s.outBox.Close()
	_ = g.Wait()

	if !workerDone {
		werr = s.awaitWorker(proc, exited)
	}
	if !workerDone || ctx.Err() != nil {
		// a worker that exits together with cancellation followed the supervisor down
		s.logger.Info("supervisor stopped", zap.Error(werr))
		return nil
	}
	s.logger.Error("worker exited, supervisor stopping", zap.Error(werr))
	if werr == nil {
		return ErrWorkerExited
	}
	return fmt.Errorf("%w: %v", ErrWorkerExited, werr)
}

// awaitWorker waits for the worker to follow ctx cancellation, killing it if it does not.
func (s *Supervisor) awaitWorker(proc Process, exited <-chan error) error {
	select {
	case err := <-exited:
		return err
	case <-time.After(workerExitTimeout):
	}
	s.logger.Warn("worker did not stop, killing", zap.Int("pid", proc.Pid()))
	if err := proc.Kill(); err != nil {
		s.logger.Error("kill worker failed", zap.Error(err))
	}
	select {
	case err := <-exited:
		return err
	case <-time.After(workerExitTimeout):
		return errors.New("worker did not exit after kill")
	}
}

// killWorker stops a worker the supervisor could not connect to.
func (s *Supervisor) killWorker(proc Process, exited <-chan error) {
	if err := proc.Kill(); err != nil {
		s.logger.Error("kill worker failed", zap.Error(err))
	}
	select {
	case <-exited:
	case <-time.After(workerExitTimeout):
		s.logger.Error("worker did not exit after kill", zap.Int("pid", proc.Pid()))
	}
}

// relay is the supervisor reactor: it forwards pending messages in both directions, one at a
// time, until ctx is done or the worker exits.
func (s *Supervisor) relay(ctx context.Context, socks sockets, exited <-chan error) (workerDone bool, werr error) {
	stage := s.identity.Topic()
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case err := <-exited:
			return true, err
		case <-s.inBox.Ready():
			for {
				_, frames, ok := s.inBox.TryTake()
				if !ok {
					break
				}
				if err := socks.toWorker.Send(frames); err != nil {
					s.sendFailed("to worker", err)
					continue
				}
				s.relayedIn.Add(1)
				metrics.RelayedMessages.WithLabelValues(stage, "in").Inc()
			}
		case <-s.outBox.Ready():
			for {
				_, frames, ok := s.outBox.TryTake()
				if !ok {
					break
				}
				if err := socks.dataOut.Send(frames); err != nil {
					s.sendFailed("data out", err)
					continue
				}
				s.relayedOut.Add(1)
				metrics.RelayedMessages.WithLabelValues(stage, "out").Inc()
			}
		}
	}
}

func (s *Supervisor) sendFailed(link string, err error) {
	s.dropLog.Do(func() {
		s.logger.Warn("relay send failed", zap.String("link", link), zap.Error(err))
	})
}

func (s *Supervisor) receive(ctx context.Context, sock transport.Socket, channel string, put func([][]byte)) {
	for {
		frames, err := sock.Recv()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, transport.ErrClosed) {
				s.logger.Warn("receive failed", zap.String("channel", channel), zap.Error(err))
			}
			return
		}
		put(frames)
	}
}

func (s *Supervisor) putUpstream(frames [][]byte) {
	t, err := envelope.TopicOf(frames)
	if err != nil {
		s.dropMalformed("data", err)
		return
	}
	if s.inBox.Put(t, frames) {
		metrics.DroppedMessages.WithLabelValues("supervisor", "in").Inc()
	}
}

// putOutput routes worker output k to the k-th sending topic.
func (s *Supervisor) putOutput(frames [][]byte) {
	t, err := envelope.TopicOf(frames)
	if err != nil {
		s.dropMalformed("worker", err)
		return
	}
	k, err := strconv.Atoi(t)
	if err != nil || k < 0 {
		s.dropMalformed("worker", fmt.Errorf("%w: output index %q", envelope.ErrMalformed, t))
		return
	}
	if k >= len(s.cfg.SendingTopics) {
		s.unrouted.Add(1)
		s.logger.Debug("output has no sending topic, dropped", zap.Int("output", k))
		return
	}
	out := s.cfg.SendingTopics[k]
	if s.outBox.Put(out, envelope.WithTopic(frames, out)) {
		metrics.DroppedMessages.WithLabelValues("supervisor", "out").Inc()
	}
}

func (s *Supervisor) observeParameters(frames [][]byte) {
	t, payload, err := envelope.ParseParameter(frames)
	if err != nil {
		s.dropMalformed("parameters", err)
		return
	}
	if !topic.Matches(s.cfg.StateTopic, t) {
		return
	}
	s.parameters.Add(1)
	s.logger.Debug("parameter update observed", zap.String("topic", t), zap.Int("bytes", len(payload)))
}

func (s *Supervisor) dropMalformed(channel string, err error) {
	s.malformed.Add(1)
	metrics.MalformedMessages.WithLabelValues("supervisor", channel).Inc()
	s.dropLog.Do(func() {
		s.logger.Warn("dropped malformed message", zap.String("channel", channel), zap.Error(err))
	})
}

// heartbeat pushes one pulse per period.
func (s *Supervisor) heartbeat(ctx context.Context, sock transport.Socket) {
	stage := s.identity.Topic()
	t := time.NewTicker(s.cfg.HeartbeatRate)
	defer t.Stop()
	for {
		if err := sock.Send(envelope.PulseFrames()); err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			s.sendFailed("heartbeat", err)
		} else {
			s.pulses.Add(1)
			metrics.PulsesSent.WithLabelValues(stage).Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
