package mqttbridge

import (
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/params"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type recordingClient struct{ msgs []published }

func (c *recordingClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.msgs = append(c.msgs, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

type recordingPublisher struct {
	topic  string
	values []any
}

func (p *recordingPublisher) Publish(stageTopic string, s params.Schema, values []any) error {
	if _, err := s.Coerce(values); err != nil {
		return err
	}
	p.topic, p.values = stageTopic, values
	return nil
}

func cannySchema(t *testing.T) params.Schema {
	t.Helper()
	s, err := params.NewSchema("Canny", []string{"Min Value", "Max Value"}, []string{"int", "int"}, []any{100, 200})
	require.NoError(t, err)
	return s
}

func newTestBridge(t *testing.T, pub Publisher) (*Bridge, *recordingClient) {
	t.Helper()
	schema := cannySchema(t)
	b := New(Config{Broker: "tcp://localhost:1883", TopicPrefix: "heron"}, nil, "", pub,
		func(stage string) (params.Schema, bool) { return schema, stage == "g##Canny##0" }, nil)
	client := &recordingClient{}
	b.out = client
	b.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return b, client
}

func TestBridge_Readiness(t *testing.T) {
	b, client := newTestBridge(t, &recordingPublisher{})
	require.NoError(t, b.handleReadiness(envelope.ReadinessFrames("g##Canny##0")))

	require.Len(t, client.msgs, 1)
	assert.Equal(t, "heron/readiness/Canny/0", client.msgs[0].topic)
	var ev ReadinessEvent
	require.NoError(t, json.Unmarshal(client.msgs[0].payload, &ev))
	assert.Equal(t, "g##Canny##0", ev.Topic)
	assert.Equal(t, "Canny", ev.Op)
	assert.Equal(t, 0, ev.Node)

	assert.Error(t, b.handleReadiness([][]byte{[]byte("g##Canny##0")}), "not a readiness topic")
	assert.Len(t, client.msgs, 1)
}

func TestBridge_ParameterCommand(t *testing.T) {
	pub := &recordingPublisher{}
	b, _ := newTestBridge(t, pub)

	require.NoError(t, b.handleCommand([]byte(`{"topic":"g##Canny##0","values":[50,150]}`)))
	assert.Equal(t, "g##Canny##0", pub.topic)
	assert.Equal(t, []any{float64(50), float64(150)}, pub.values)

	assert.ErrorIs(t, b.handleCommand([]byte(`{"topic":"g##Other##0","values":[]}`)), ErrUnknownStage)
	assert.ErrorIs(t, b.handleCommand([]byte(`{"topic":"g##Canny##0","values":["x",1]}`)), params.ErrSchemaMismatch)
	assert.Error(t, b.handleCommand([]byte(`not json`)))
}

func TestNew_GeneratesClientID(t *testing.T) {
	b := New(Config{}, nil, "", nil, nil, nil)
	assert.Contains(t, b.cfg.ClientID, "heron-bridge-")
}
