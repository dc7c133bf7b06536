package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/internal/config"
	"github.com/YAMLcase/Heron/internal/metrics"
	"github.com/YAMLcase/Heron/transport"
)

func startForwarder(t *testing.T, fabric transport.Fabric, kind Kind) (*Forwarder, context.CancelFunc, <-chan error) {
	t.Helper()
	f := New(kind, fabric, "in", "out")
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	select {
	case <-f.Ready():
	case err := <-errc:
		t.Fatalf("forwarder exited early: %v", err)
	case <-time.After(time.Second):
		t.Fatal("forwarder not ready")
	}
	return f, cancel, errc
}

func TestForwarder_RelaysMatchingTopics(t *testing.T) {
	fabric := transport.NewMemory()
	f, cancel, errc := startForwarder(t, fabric, Data)
	defer cancel()

	ctx := context.Background()
	camera, err := fabric.Dial(ctx, transport.Sub, "out", transport.Subscribe("Camera##0"))
	require.NoError(t, err)
	other, err := fabric.Dial(ctx, transport.Sub, "out", transport.Subscribe("Canny##1"))
	require.NoError(t, err)
	producer, err := fabric.Dial(ctx, transport.Pub, "in")
	require.NoError(t, err)

	msg := [][]byte{[]byte("Camera##0##Frame Out"), []byte(`{"dtype":"uint8","shape":[1]}`), {7}}
	require.NoError(t, producer.Send(msg))

	got, err := camera.Recv()
	require.NoError(t, err)
	assert.Equal(t, msg, got, "forwarders relay messages unmodified")

	received := make(chan struct{})
	go func() {
		if _, err := other.Recv(); err == nil {
			close(received)
		}
	}()
	select {
	case <-received:
		t.Fatal("non-matching subscriber received the message")
	case <-time.After(30 * time.Millisecond):
	}

	require.Eventually(t, func() bool { return f.Stats().Forwarded == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
	_ = other.Close()
}

func TestForwarder_CountsMalformed(t *testing.T) {
	fabric := transport.NewMemory()
	f, cancel, _ := startForwarder(t, fabric, Liveness)
	defer cancel()

	counter := metrics.MalformedMessages.WithLabelValues("forwarder", string(Liveness))
	before := testutil.ToFloat64(counter)

	producer, err := fabric.Dial(context.Background(), transport.Pub, "in")
	require.NoError(t, err)
	require.NoError(t, producer.Send(nil))

	require.Eventually(t, func() bool { return testutil.ToFloat64(counter) == before+1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), f.Stats().Malformed)
	assert.Zero(t, f.Stats().Forwarded)
}

func TestForwarder_BindFailureIsFatal(t *testing.T) {
	fabric := transport.NewMemory()
	_, err := fabric.Listen(context.Background(), transport.Pub, "out")
	require.NoError(t, err)

	f := New(Liveness, fabric, "in", "out")
	err = f.Run(context.Background())
	require.ErrorIs(t, err, transport.ErrAddressInUse)

	// inbound socket must have been released
	_, err = fabric.Listen(context.Background(), transport.Sub, "in")
	assert.NoError(t, err)
}

func TestForwarder_RunTwice(t *testing.T) {
	fabric := transport.NewMemory()
	f, cancel, _ := startForwarder(t, fabric, Parameters)
	defer cancel()

	assert.ErrorIs(t, f.Run(context.Background()), ErrRunning)
}

func TestRunAll_StopsOnCancel(t *testing.T) {
	fabric := transport.NewMemory()
	set := NewSet(config.Default(), fabric)
	require.Len(t, set, 3)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- RunAll(ctx, set...) }()

	for _, f := range set {
		<-f.Ready()
	}
	cancel()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunAll did not stop")
	}
}
