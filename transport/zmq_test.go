package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zmqWithin = 5 * time.Second

func freeTCP(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return TCP("127.0.0.1", port)
}

// receiver drains s into a channel so a polling sender never races a stray Recv.
func receiver(s Socket) <-chan [][]byte {
	ch := make(chan [][]byte, 16)
	go func() {
		defer close(ch)
		for {
			f, err := s.Recv()
			if err != nil {
				return
			}
			ch <- f
		}
	}()
	return ch
}

func TestZMQ_PushPullMultipart(t *testing.T) {
	ctx := context.Background()
	z := NewZMQ()
	ep := freeTCP(t)

	pull, err := z.Listen(ctx, Pull, ep)
	require.NoError(t, err)
	defer pull.Close()
	push, err := z.Dial(ctx, Push, ep)
	require.NoError(t, err)
	defer push.Close()

	msg := [][]byte{[]byte("0"), []byte(`{"dtype":"uint8","shape":[2]}`), {1, 2}}
	require.NoError(t, push.Send(msg))
	require.NoError(t, push.Send([][]byte{[]byte("PULSE")}))

	got := receiver(pull)
	select {
	case f := <-got:
		assert.Equal(t, msg, f)
	case <-time.After(zmqWithin):
		t.Fatal("multipart message not received")
	}
	select {
	case f := <-got:
		assert.Equal(t, [][]byte{[]byte("PULSE")}, f)
	case <-time.After(zmqWithin):
		t.Fatal("single-part message not received")
	}
}

func TestZMQ_PubSubPrefixFilter(t *testing.T) {
	ctx := context.Background()
	z := NewZMQ()
	ep := freeTCP(t)

	pub, err := z.Listen(ctx, Pub, ep)
	require.NoError(t, err)
	defer pub.Close()
	camera, err := z.Dial(ctx, Sub, ep, Subscribe("Camera##0"))
	require.NoError(t, err)
	defer camera.Close()
	canny, err := z.Dial(ctx, Sub, ep, Subscribe("Canny##1"))
	require.NoError(t, err)
	defer canny.Close()

	cameraIn, cannyIn := receiver(camera), receiver(canny)

	// subscriptions reach the publisher asynchronously; publish until one lands
	msg := [][]byte{[]byte("Camera##0##Frame Out"), []byte("h"), []byte("p")}
	deadline := time.After(zmqWithin)
	for received := false; !received; {
		require.NoError(t, pub.Send(msg))
		select {
		case f := <-cameraIn:
			assert.Equal(t, msg, f)
			received = true
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("subscriber never received a matching message")
		}
	}

	select {
	case f := <-cannyIn:
		t.Fatalf("non-matching subscriber received %q", f[0])
	case <-time.After(100 * time.Millisecond):
	}
}

func TestZMQ_CloseUnblocksRecv(t *testing.T) {
	pull, err := NewZMQ().Listen(context.Background(), Pull, freeTCP(t))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := pull.Recv()
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, pull.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(zmqWithin):
		t.Fatal("Recv still blocked after Close")
	}
}

func TestZMQ_DialTimeout(t *testing.T) {
	z := NewZMQ(WithDialTimeout(500 * time.Millisecond))

	start := time.Now()
	_, err := z.Dial(context.Background(), Push, freeTCP(t))
	require.Error(t, err, "nobody is bound to the endpoint")
	assert.Less(t, time.Since(start), zmqWithin)
}

func TestZMQ_DialWaitsForLateListener(t *testing.T) {
	ctx := context.Background()
	z := NewZMQ(WithDialTimeout(zmqWithin))
	ep := freeTCP(t)

	listened := make(chan Socket, 1)
	go func() {
		time.Sleep(300 * time.Millisecond)
		pull, _ := z.Listen(ctx, Pull, ep)
		listened <- pull
	}()

	push, err := z.Dial(ctx, Push, ep)
	require.NoError(t, err)
	_ = push.Close()

	pull := <-listened
	require.NotNil(t, pull)
	_ = pull.Close()
}

func TestZMQ_ListenAddressInUse(t *testing.T) {
	ctx := context.Background()
	z := NewZMQ()
	ep := freeTCP(t)

	first, err := z.Listen(ctx, Pull, ep)
	require.NoError(t, err)
	defer first.Close()

	_, err = z.Listen(ctx, Pull, ep)
	assert.ErrorIs(t, err, ErrAddressInUse)
}
