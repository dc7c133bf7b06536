package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

const (
	defaultDialRetry   = 250 * time.Millisecond
	defaultDialTimeout = 10 * time.Second
	defaultSendTimeout = 5 * time.Second
)

// ZMQ is the ZeroMQ fabric.
type ZMQ struct {
	dialRetry   time.Duration
	dialTimeout time.Duration
	sendTimeout time.Duration
	logger      *zap.Logger
}

// ZMQOption configures the ZeroMQ fabric.
type ZMQOption func(*ZMQ)

// WithDialTimeout bounds how long Dial keeps retrying an endpoint nobody has bound yet.
func WithDialTimeout(d time.Duration) ZMQOption {
	return func(z *ZMQ) { z.dialTimeout = d }
}

// WithSendTimeout bounds how long Send may block, e.g. on a PUSH with no connected peer.
func WithSendTimeout(d time.Duration) ZMQOption {
	return func(z *ZMQ) { z.sendTimeout = d }
}

// WithLogger sets the fabric logger.
func WithLogger(l *zap.Logger) ZMQOption {
	return func(z *ZMQ) { z.logger = l }
}

// NewZMQ returns the production fabric.
func NewZMQ(opts ...ZMQOption) *ZMQ {
	z := &ZMQ{
		dialRetry:   defaultDialRetry,
		dialTimeout: defaultDialTimeout,
		sendTimeout: defaultSendTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

func (z *ZMQ) newSocket(ctx context.Context, p Pattern) (zmq4.Socket, error) {
	retries := int(z.dialTimeout / z.dialRetry)
	opts := []zmq4.Option{
		zmq4.WithDialerRetry(z.dialRetry),
		zmq4.WithDialerMaxRetries(retries),
		zmq4.WithTimeout(z.sendTimeout),
	}
	switch p {
	case Push:
		return zmq4.NewPush(ctx, opts...), nil
	case Pull:
		return zmq4.NewPull(ctx, opts...), nil
	case Pub:
		return zmq4.NewPub(ctx, opts...), nil
	case Sub:
		return zmq4.NewSub(ctx, opts...), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPattern, p)
}

// Listen binds a socket to endpoint.
func (z *ZMQ) Listen(ctx context.Context, p Pattern, endpoint string, opts ...SocketOption) (Socket, error) {
	return z.open(ctx, p, endpoint, true, opts)
}

// Dial connects a socket to endpoint, retrying until the dial timeout while nobody has bound it.
func (z *ZMQ) Dial(ctx context.Context, p Pattern, endpoint string, opts ...SocketOption) (Socket, error) {
	return z.open(ctx, p, endpoint, false, opts)
}

func (z *ZMQ) open(ctx context.Context, p Pattern, endpoint string, bind bool, opts []SocketOption) (Socket, error) {
	s, err := z.newSocket(ctx, p)
	if err != nil {
		return nil, err
	}

	verb := "dial"
	if bind {
		verb = "listen"
		err = s.Listen(endpoint)
	} else {
		err = s.Dial(endpoint)
	}
	if err != nil {
		_ = s.Close()
		if bind && errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s %s: %v", ErrAddressInUse, p, endpoint, err)
		}
		return nil, fmt.Errorf("transport: %s %s %s: %w", verb, p, endpoint, err)
	}

	o := buildOptions(opts)
	if p == Sub {
		for _, prefix := range o.subscriptions {
			if err := s.SetOption(zmq4.OptionSubscribe, prefix); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("transport: subscribe %q on %s: %w", prefix, endpoint, err)
			}
		}
	}

	z.logger.Debug("socket opened",
		zap.String("pattern", p.String()),
		zap.String("endpoint", endpoint),
		zap.Bool("bind", bind))

	return &zmqSocket{pattern: p, sock: s, closed: make(chan struct{})}, nil
}

type zmqSocket struct {
	pattern Pattern
	sock    zmq4.Socket

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

func (s *zmqSocket) Send(frames [][]byte) error {
	if !s.pattern.canSend() {
		return fmt.Errorf("%w: send on %s", ErrPattern, s.pattern)
	}
	var err error
	if len(frames) == 1 {
		err = s.sock.Send(zmq4.NewMsg(frames[0]))
	} else {
		err = s.sock.SendMulti(zmq4.NewMsgFrom(frames...))
	}
	return s.mapErr(err)
}

func (s *zmqSocket) Recv() ([][]byte, error) {
	if !s.pattern.canRecv() {
		return nil, fmt.Errorf("%w: recv on %s", ErrPattern, s.pattern)
	}
	msg, err := s.sock.Recv()
	if err != nil {
		return nil, s.mapErr(err)
	}
	return msg.Frames, nil
}

func (s *zmqSocket) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.sock.Close()
	})
	return s.closeErr
}

func (s *zmqSocket) mapErr(err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	if errors.Is(err, context.Canceled) {
		return ErrClosed
	}
	return err
}
