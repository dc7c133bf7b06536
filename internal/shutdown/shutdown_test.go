package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatch_SignalCancels(t *testing.T) {
	sigs := make(chan os.Signal, 2)
	exits := make(chan int, 1)
	ctx, cancel := watch(context.Background(), zap.NewNop(), time.Hour, sigs, func(c int) { exits <- c })
	defer cancel()

	sigs <- syscall.SIGTERM
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}

	sigs <- syscall.SIGINT
	select {
	case code := <-exits:
		assert.Equal(t, ExitForced, code)
	case <-time.After(time.Second):
		t.Fatal("second signal did not force exit")
	}
}

func TestWatch_Watchdog(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	exits := make(chan int, 1)
	_, cancel := watch(context.Background(), zap.NewNop(), 20*time.Millisecond, sigs, func(c int) { exits <- c })
	defer cancel()

	sigs <- syscall.SIGTERM
	select {
	case code := <-exits:
		assert.Equal(t, ExitForced, code)
	case <-time.After(time.Second):
		t.Fatal("watchdog did not fire")
	}
}

func TestWatch_NoSignal(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	exits := make(chan int, 1)
	ctx, cancel := watch(context.Background(), zap.NewNop(), time.Millisecond, sigs, func(c int) { exits <- c })
	cancel()
	<-ctx.Done()

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, exits, "a normal stop must not trigger the watchdog")
}
