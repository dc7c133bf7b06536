package params

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/envelope"
	"github.com/YAMLcase/Heron/transport"
)

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	fabric := transport.NewMemory()
	sub, err := fabric.Listen(ctx, transport.Sub, "inproc://params-in", transport.Subscribe("g##Canny##0"))
	require.NoError(t, err)
	defer sub.Close()

	pub, err := NewPublisher(ctx, fabric, "inproc://params-in", nil)
	require.NoError(t, err)
	defer pub.Close()

	s, err := NewSchema("Canny", []string{"Min Value", "Max Value"}, []string{"int", "int"}, []any{100, 200})
	require.NoError(t, err)

	require.ErrorIs(t, pub.Publish("g##Canny##0", s, []any{"low", 200}), ErrSchemaMismatch)
	require.NoError(t, pub.Publish("g##Canny##0", s, []any{50, 150}))

	got := make(chan [][]byte, 1)
	go func() {
		frames, err := sub.Recv()
		if err == nil {
			got <- frames
		}
	}()
	select {
	case frames := <-got:
		tp, payload, err := envelope.ParseParameter(frames)
		require.NoError(t, err)
		assert.Equal(t, "g##Canny##0", tp)
		v, err := s.Decode(payload)
		require.NoError(t, err)
		assert.Equal(t, int64(50), v.Int("Min Value"))
		assert.Equal(t, int64(150), v.Int("Max Value"))
	case <-time.After(time.Second):
		t.Fatal("no parameters received")
	}
}
