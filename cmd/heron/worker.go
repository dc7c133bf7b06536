package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YAMLcase/Heron/internal/health"
	"github.com/YAMLcase/Heron/topic"
	"github.com/YAMLcase/Heron/worker"
)

func workerCmd(a *app) *cobra.Command {
	var (
		port            int
		parametersTopic string
		inputs          string
		stageName       string
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "run a stage's work function (started by its supervisor)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup("worker"); err != nil {
				return err
			}
			st, ok := a.registry.Lookup(stageName)
			if !ok {
				return fmt.Errorf("unknown stage %q", stageName)
			}
			schema, err := st.Descriptor.Schema()
			if err != nil {
				return err
			}
			ports, err := topic.Ports(port)
			if err != nil {
				return err
			}

			opts := []worker.Option{worker.WithLogger(a.logger)}
			if st.EndOfLife != nil {
				opts = append(opts, worker.WithEndOfLife(st.EndOfLife))
			}
			if a.cfg.VisualizationDir != "" {
				sink, err := worker.NewPNGSink(filepath.Join(a.cfg.VisualizationDir, stageName))
				if err != nil {
					return err
				}
				opts = append(opts, worker.WithSink(sink))
			}

			w, err := worker.New(worker.Config{
				ParametersTopic:    parametersTopic,
				Host:               a.cfg.Host,
				Ports:              ports,
				Inputs:             topic.ParseList(inputs),
				Schema:             schema,
				ParametersEndpoint: a.cfg.Endpoint(a.cfg.Forwarders.Parameters.Publish),
				LivenessEndpoint:   a.cfg.Endpoint(a.cfg.Forwarders.Liveness.Submit),
				HeartbeatRate:      a.cfg.HeartbeatRate,
				HeartbeatsToDeath:  a.cfg.HeartbeatsToDeath,
			}, a.fabric(), st.Work, opts...)
			if err != nil {
				return err
			}

			ctx, cancel := a.context()
			defer cancel()

			hs := health.New(a.cfg.StageHealthAddr(ports.Push), a.logger)
			hs.AddReadinessCheck("state", health.True(func() bool { return w.State() == worker.StateReady }, "worker"))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return hs.Run(gctx) })
			g.Go(func() error { return w.Run(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "base port shared with the supervisor")
	cmd.Flags().StringVar(&parametersTopic, "parameters-topic", "", "canonical stage topic")
	cmd.Flags().StringVar(&inputs, "inputs", "", "comma separated receiving topics")
	cmd.Flags().StringVar(&stageName, "stage", "", "registered stage name")
	for _, f := range []string{"port", "parameters-topic", "stage"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
