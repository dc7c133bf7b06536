// Command heron runs the processes of a Heron graph: forwarders, stage supervisors and workers,
// plus parameter and MQTT tooling.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YAMLcase/Heron/internal/config"
	"github.com/YAMLcase/Heron/internal/logger"
	"github.com/YAMLcase/Heron/internal/shutdown"
	"github.com/YAMLcase/Heron/stage"
	"github.com/YAMLcase/Heron/stages/differencing"
	"github.com/YAMLcase/Heron/stages/generator"
	"github.com/YAMLcase/Heron/transport"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg      config.Config
	logger   *zap.Logger
	registry *stage.Registry
}

func newRegistry() (*stage.Registry, error) {
	r := stage.NewRegistry()
	for _, register := range []func(*stage.Registry) error{differencing.Register, generator.Register} {
		if err := register(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// setup loads configuration and builds the process logger.
func (a *app) setup(component string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	a.cfg = cfg
	a.logger = logger.ForProcess(logger.New(cfg.Logging.Level, logger.ParseFormat(cfg.Logging.Format)), component)

	a.registry, err = newRegistry()
	return err
}

func (a *app) fabric() transport.Fabric {
	return transport.NewZMQ(transport.WithDialTimeout(a.cfg.DialTimeout), transport.WithLogger(a.logger))
}

func (a *app) context() (context.Context, context.CancelFunc) {
	return shutdown.Context(context.Background(), a.logger, shutdown.DefaultWatchdog)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "heron",
		Short:         "run the processes of a Heron processing graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOGGING_LEVEL)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "console or json (overrides LOGGING_FORMAT)")

	root.AddCommand(
		forwarderCmd(a),
		supervisorCmd(a),
		workerCmd(a),
		paramsCmd(a),
		bridgeCmd(a),
		stagesCmd(a),
	)
	return root
}

// exitError carries a process exit status out of a subcommand.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "heron:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(1)
}
