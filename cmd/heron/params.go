package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YAMLcase/Heron/internal/paramfile"
	"github.com/YAMLcase/Heron/params"
)

// settle gives a fresh PUB connection time to reach the forwarder before the first send.
const settle = 200 * time.Millisecond

func paramsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "publish stage parameters",
	}
	cmd.AddCommand(paramsPublishCmd(a), paramsWatchCmd(a))
	return cmd
}

func (a *app) publisher(cmd *cobra.Command) (*params.Publisher, error) {
	return params.NewPublisher(cmd.Context(), a.fabric(), a.cfg.Endpoint(a.cfg.Forwarders.Parameters.Submit), a.logger)
}

func paramsPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "publish STAGE_TOPIC VALUES",
		Short:   "publish one parameter vector, VALUES is a YAML list in schema order",
		Example: `  heron params publish 'g##Differencing##0' '[true, false]'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup("params"); err != nil {
				return err
			}
			schema, ok := a.registry.SchemaFor(args[0])
			if !ok {
				return fmt.Errorf("no stage schema for %q", args[0])
			}
			var values []any
			if err := yaml.Unmarshal([]byte(args[1]), &values); err != nil {
				return fmt.Errorf("parse values: %w", err)
			}

			pub, err := a.publisher(cmd)
			if err != nil {
				return err
			}
			defer pub.Close()
			time.Sleep(settle)
			return pub.Publish(args[0], schema, values)
		},
	}
}

func paramsWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "publish a parameter file and republish it whenever it changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup("params"); err != nil {
				return err
			}
			pub, err := a.publisher(cmd)
			if err != nil {
				return err
			}
			defer pub.Close()
			time.Sleep(settle)

			ctx, cancel := a.context()
			defer cancel()
			return paramfile.NewWatcher(args[0], pub, a.registry.SchemaFor, a.logger).Run(ctx)
		},
	}
}
