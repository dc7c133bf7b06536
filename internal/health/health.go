// Package health serves liveness, readiness and metrics endpoints for Heron processes.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	goroutineThreshold = 10000
	shutdownTimeout    = 5 * time.Second
)

// Server exposes /live, /ready and /metrics.
type Server struct {
	addr   string
	checks healthcheck.Handler
	mux    *http.ServeMux
	logger *zap.Logger
}

// New returns a server for addr. An empty addr disables serving; checks can still be added.
func New(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	checks := healthcheck.NewHandler()
	checks.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))

	mux := http.NewServeMux()
	mux.Handle("/live", checks)
	mux.Handle("/ready", checks)
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{addr: addr, checks: checks, mux: mux, logger: logger}
}

// AddLivenessCheck adds a check that fails /live and /ready.
func (s *Server) AddLivenessCheck(name string, check healthcheck.Check) {
	s.checks.AddLivenessCheck(name, check)
}

// AddReadinessCheck adds a check that fails /ready.
func (s *Server) AddReadinessCheck(name string, check healthcheck.Check) {
	s.checks.AddReadinessCheck(name, check)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if s.addr == "" {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("health endpoints listening", zap.String("addr", s.addr))

	select {
	case err := <-errc:
		return fmt.Errorf("health: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health: shutdown: %w", err)
	}
	return nil
}

// Closed passes once ch is closed.
func Closed(ch <-chan struct{}, what string) healthcheck.Check {
	return func() error {
		select {
		case <-ch:
			return nil
		default:
			return fmt.Errorf("%s not ready", what)
		}
	}
}

// True passes while fn returns true.
func True(fn func() bool, what string) healthcheck.Check {
	return func() error {
		if fn() {
			return nil
		}
		return fmt.Errorf("%s failing", what)
	}
}
