// Package mqttbridge connects a Heron graph to an MQTT broker: readiness signals are published
// as JSON events and parameter commands received over MQTT are forwarded to the Parameter
// Forwarder.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/readiness/<op>/<node>   {"topic":"g##Canny##0","op":"Canny","node":0,"time":"..."}
//	<prefix>/parameters/set          {"topic":"g##Canny##0","values":[false,50,150]}
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/internal/metrics"
	"github.com/YAMLcase/Heron/params"
	"github.com/YAMLcase/Heron/topic"
	"github.com/YAMLcase/Heron/transport"
)

const (
	qos             = 1
	publishTimeout  = 5 * time.Second
	disconnectQuiet = 250 // milliseconds
)

var ErrUnknownStage = errors.New("mqttbridge: no schema for stage")

// Config is the broker connection.
type Config struct {
	Broker      string
	TopicPrefix string
	ClientID    string
}

// ReadinessEvent is published once per readiness signal.
type ReadinessEvent struct {
	Topic string    `json:"topic"`
	Op    string    `json:"op"`
	Node  int       `json:"node"`
	Time  time.Time `json:"time"`
}

// ParameterCommand is a parameter update received over MQTT.
type ParameterCommand struct {
	Topic  string `json:"topic"`
	Values []any  `json:"values"`
}

// Publisher sends parameter vectors into the graph.
type Publisher interface {
	Publish(stageTopic string, s params.Schema, values []any) error
}

// SchemaLookup resolves the parameter schema of a stage topic.
type SchemaLookup func(stageTopic string) (params.Schema, bool)

// messagePublisher is the part of mqtt.Client the bridge publishes through.
type messagePublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Bridge relays between the Liveness Forwarder, the Parameter Forwarder and MQTT.
type Bridge struct {
	cfg              Config
	fabric           transport.Fabric
	livenessEndpoint string
	params           Publisher
	schemas          SchemaLookup
	logger           *zap.Logger

	out messagePublisher
	now func() time.Time
}

// New creates a bridge. livenessEndpoint is the Liveness Forwarder's outbound side.
func New(cfg Config, fabric transport.Fabric, livenessEndpoint string, pub Publisher, schemas SchemaLookup, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "heron-bridge-" + uuid.NewString()
	}
	return &Bridge{
		cfg:              cfg,
		fabric:           fabric,
		livenessEndpoint: livenessEndpoint,
		params:           pub,
		schemas:          schemas,
		logger:           logger,
		now:              time.Now,
	}
}

func (b *Bridge) readinessTopic(id topic.StageIdentity) string {
	return b.cfg.TopicPrefix + "/readiness/" + id.OpName + "/" + strconv.Itoa(id.NodeIndex)
}

func (b *Bridge) commandTopic() string { return b.cfg.TopicPrefix + "/parameters/set" }

// Run connects to the broker and relays until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.logger.Info("connected to broker", zap.String("broker", b.cfg.Broker))
		if token := c.Subscribe(b.commandTopic(), qos, b.onMessage); token.Wait() && token.Error() != nil {
			b.logger.Error("subscribe failed", zap.String("topic", b.commandTopic()), zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("broker connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqttbridge: connect %s: %w", b.cfg.Broker, token.Error())
	}
	defer client.Disconnect(disconnectQuiet)
	b.out = client

	sub, err := b.fabric.Dial(ctx, transport.Sub, b.livenessEndpoint, transport.Subscribe(""))
	if err != nil {
		return fmt.Errorf("mqttbridge: subscribe liveness: %w", err)
	}
	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	for {
		frames, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("mqttbridge: receive: %w", err)
		}
		if err := b.handleReadiness(frames); err != nil {
			b.logger.Warn("readiness not bridged", zap.Error(err))
		}
	}
}

func (b *Bridge) handleReadiness(frames [][]byte) error {
	stageTopic, err := envelope.ParseReadiness(frames)
	if err != nil {
		return err
	}
	id, err := topic.ParseStage(stageTopic)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ReadinessEvent{Topic: stageTopic, Op: id.OpName, Node: id.NodeIndex, Time: b.now().UTC()})
	if err != nil {
		return err
	}
	token := b.out.Publish(b.readinessTopic(id), qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", b.readinessTopic(id))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", b.readinessTopic(id), err)
	}
	metrics.BridgeEvents.WithLabelValues("readiness").Inc()
	b.logger.Info("readiness bridged", zap.String("stage", stageTopic))
	return nil
}

func (b *Bridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := b.handleCommand(msg.Payload()); err != nil {
		b.logger.Warn("parameter command rejected", zap.String("mqtt_topic", msg.Topic()), zap.Error(err))
	}
}

func (b *Bridge) handleCommand(payload []byte) error {
	var cmd ParameterCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decode command: %w", err)
	}
	schema, ok := b.schemas(cmd.Topic)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, cmd.Topic)
	}
	if err := b.params.Publish(cmd.Topic, schema, cmd.Values); err != nil {
		return err
	}
	metrics.BridgeEvents.WithLabelValues("parameters").Inc()
	b.logger.Debug("parameter command forwarded", zap.String("stage", cmd.Topic))
	return nil
}
