package params

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/transport"
)

// Publisher sends parameter vectors to the Parameter Forwarder's inbound side.
type Publisher struct {
	mu     sync.Mutex
	sock   transport.Socket
	logger *zap.Logger
}

// NewPublisher connects a PUB socket to endpoint.
//
// Subscribers that join after a publish never see it. Parameters are latest-wins, so callers
// that publish once right after connecting should give the connection a moment to settle.
func NewPublisher(ctx context.Context, fabric transport.Fabric, endpoint string, logger *zap.Logger) (*Publisher, error) {
	sock, err := fabric.Dial(ctx, transport.Pub, endpoint)
	if err != nil {
		return nil, fmt.Errorf("params: connect publisher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{sock: sock, logger: logger}, nil
}

// Publish coerces values against s and publishes them on stageTopic.
func (p *Publisher) Publish(stageTopic string, s Schema, values []any) error {
	payload, err := s.EncodeValues(values)
	if err != nil {
		return err
	}
	return p.send(stageTopic, payload)
}

// PublishVector publishes an already coerced vector.
func (p *Publisher) PublishVector(stageTopic string, s Schema, v Vector) error {
	payload, err := s.Encode(v)
	if err != nil {
		return err
	}
	return p.send(stageTopic, payload)
}

func (p *Publisher) send(stageTopic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.sock.Send(envelope.ParameterFrames(stageTopic, payload)); err != nil {
		return fmt.Errorf("params: publish %s: %w", stageTopic, err)
	}
	p.logger.Debug("parameters published", zap.String("topic", stageTopic), zap.Int("bytes", len(payload)))
	return nil
}

// Close closes the socket.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sock.Close()
}
