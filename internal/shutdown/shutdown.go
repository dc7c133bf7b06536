// Package shutdown turns termination signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultWatchdog bounds how long teardown may take after the first signal.
const DefaultWatchdog = 30 * time.Second

// ExitForced is the exit status when teardown is cut short.
const ExitForced = 1

// Context returns a context cancelled on SIGINT or SIGTERM. A second signal, or teardown still
// running after watchdog, exits the process.
func Context(parent context.Context, logger *zap.Logger, watchdog time.Duration) (context.Context, context.CancelFunc) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := watch(parent, logger, watchdog, sigs, func(code int) {
		_ = logger.Sync()
		os.Exit(code)
	})
	return ctx, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func watch(parent context.Context, logger *zap.Logger, watchdog time.Duration, sigs <-chan os.Signal, exit func(int)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		var sig os.Signal
		select {
		case sig = <-sigs:
		case <-ctx.Done():
			return
		}
		logger.Info("signal received, shutting down",
			zap.String("signal", sig.String()),
			zap.Duration("watchdog", watchdog))
		cancel()

		timer := time.NewTimer(watchdog)
		defer timer.Stop()
		select {
		case sig := <-sigs:
			logger.Warn("second signal, forcing exit", zap.String("signal", sig.String()))
		case <-timer.C:
			logger.Error("shutdown watchdog expired, forcing exit")
		}
		exit(ExitForced)
	}()
	return ctx, cancel
}
