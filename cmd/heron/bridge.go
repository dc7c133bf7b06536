package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/YAMLcase/Heron/internal/mqttbridge"
)

func bridgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "bridge readiness signals and parameter commands to an MQTT broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup("bridge"); err != nil {
				return err
			}
			if a.cfg.MQTT.Broker == "" {
				return errors.New("mqtt.broker is not configured (HERON_MQTT_BROKER)")
			}
			pub, err := a.publisher(cmd)
			if err != nil {
				return err
			}
			defer pub.Close()
			time.Sleep(settle)

			ctx, cancel := a.context()
			defer cancel()
			b := mqttbridge.New(mqttbridge.Config{
				Broker:      a.cfg.MQTT.Broker,
				TopicPrefix: a.cfg.MQTT.TopicPrefix,
				ClientID:    a.cfg.MQTT.ClientID,
			}, a.fabric(), a.cfg.Endpoint(a.cfg.Forwarders.Liveness.Publish), pub, a.registry.SchemaFor, a.logger)
			return b.Run(ctx)
		},
	}
}
