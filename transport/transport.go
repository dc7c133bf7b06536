// Package transport is the channel fabric Heron processes talk over.
//
// Heron uses four ZeroMQ socket patterns: PUSH/PULL for the private Supervisor<->Worker
// channels and PUB/SUB for everything that goes through a forwarder. A Fabric creates sockets
// by binding (Listen) or connecting (Dial) to an endpoint; either side of a pair may bind.
//
// Two fabrics are provided: ZMQ, the production fabric, and Memory, an in-process fabric with
// the same delivery rules used by tests and single-process demos.
package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed socket.
	ErrClosed = errors.New("transport: socket closed")

	// ErrAddressInUse is returned when binding an endpoint that is already bound.
	ErrAddressInUse = errors.New("transport: address already in use")

	// ErrPattern is returned for an operation the socket pattern does not support.
	ErrPattern = errors.New("transport: operation not supported by socket pattern")
)

// Pattern is a socket messaging pattern.
type Pattern int

const (
	Push Pattern = iota
	Pull
	Pub
	Sub
)

func (p Pattern) String() string {
	switch p {
	case Push:
		return "PUSH"
	case Pull:
		return "PULL"
	case Pub:
		return "PUB"
	case Sub:
		return "SUB"
	}
	return fmt.Sprintf("Pattern(%d)", int(p))
}

func (p Pattern) canSend() bool { return p == Push || p == Pub }
func (p Pattern) canRecv() bool { return p == Pull || p == Sub }

// Socket is one end of a channel. Frames form one multipart message.
//
// Send and Recv may be called from different goroutines, but each must have a single caller.
// Close unblocks a pending Recv.
type Socket interface {
	Send(frames [][]byte) error
	Recv() ([][]byte, error)
	Close() error
}

// Fabric creates sockets.
type Fabric interface {
	Listen(ctx context.Context, p Pattern, endpoint string, opts ...SocketOption) (Socket, error)
	Dial(ctx context.Context, p Pattern, endpoint string, opts ...SocketOption) (Socket, error)
}

type socketOptions struct {
	subscriptions []string
}

// SocketOption configures a socket.
type SocketOption func(*socketOptions)

// Subscribe adds a prefix subscription to a SUB socket. A SUB socket without subscriptions
// receives nothing; Subscribe("") receives everything.
func Subscribe(prefix string) SocketOption {
	return func(o *socketOptions) {
		o.subscriptions = append(o.subscriptions, prefix)
	}
}

func buildOptions(opts []SocketOption) socketOptions {
	var o socketOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// TCP formats a TCP endpoint.
func TCP(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}
