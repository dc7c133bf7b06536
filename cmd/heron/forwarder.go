package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YAMLcase/Heron/forwarder"
	"github.com/YAMLcase/Heron/internal/health"
)

func forwarderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "forwarder [data|parameters|liveness|all]",
		Short:     "run one or all of the graph forwarders",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"data", "parameters", "liveness", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			which := "all"
			if len(args) == 1 {
				which = args[0]
			}
			if err := a.setup("forwarder"); err != nil {
				return err
			}

			var fs []*forwarder.Forwarder
			for _, f := range forwarder.NewSet(a.cfg, a.fabric(), forwarder.WithLogger(a.logger)) {
				if which == "all" || string(f.Kind()) == which {
					fs = append(fs, f)
				}
			}
			if len(fs) == 0 {
				return fmt.Errorf("unknown forwarder %q", which)
			}

			ctx, cancel := a.context()
			defer cancel()

			hs := health.New(a.cfg.HealthAddr, a.logger)
			for _, f := range fs {
				hs.AddReadinessCheck(string(f.Kind()), health.Closed(f.Ready(), string(f.Kind())+" forwarder"))
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return hs.Run(gctx) })
			g.Go(func() error { return forwarder.RunAll(gctx, fs...) })
			err := g.Wait()
			if err != nil {
				a.logger.Error("forwarder failed", zap.Error(err))
			}
			return err
		},
	}
}
