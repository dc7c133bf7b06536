package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/YAMLcase/Heron/internal/health"
	"github.com/YAMLcase/Heron/supervisor"
	"github.com/YAMLcase/Heron/topic"
)

// inTreeWorker marks a descriptor whose worker is this binary's worker subcommand.
const inTreeWorker = "heron"

func supervisorCmd(a *app) *cobra.Command {
	var (
		workerExec string
		workerArgs []string
	)
	cmd := &cobra.Command{
		Use:   "supervisor PUSH_PORT RECEIVING_TOPICS SENDING_TOPICS STATE_TOPIC",
		Short: "supervise one stage: spawn its worker and relay its traffic",
		Long: `Topic lists are comma separated; "None" or "" means no topics.
The worker binds PUSH_PORT, the supervisor PUSH_PORT+1 and the heartbeat uses PUSH_PORT+2.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup("supervisor"); err != nil {
				return err
			}
			base, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("push port %q: %w", args[0], err)
			}
			ports, err := topic.Ports(base)
			if err != nil {
				return err
			}
			stateTopic := args[3]

			command, err := a.workerCommand(stateTopic, workerExec, workerArgs)
			if err != nil {
				return err
			}

			cfg := supervisor.Config{
				StateTopic:         stateTopic,
				Host:               a.cfg.Host,
				Ports:              ports,
				ReceivingTopics:    topic.ParseList(args[1]),
				SendingTopics:      topic.ParseList(args[2]),
				DataInEndpoint:     a.cfg.Endpoint(a.cfg.Forwarders.Data.Publish),
				DataOutEndpoint:    a.cfg.Endpoint(a.cfg.Forwarders.Data.Submit),
				ParametersEndpoint: a.cfg.Endpoint(a.cfg.Forwarders.Parameters.Publish),
				HeartbeatRate:      a.cfg.HeartbeatRate,
				SampleInterval:     a.cfg.SampleInterval,
				Worker:             command,
			}
			s, err := supervisor.New(cfg, a.fabric(), supervisor.ExecLauncher{Logger: a.logger.Named("worker")},
				supervisor.WithLogger(a.logger))
			if err != nil {
				return err
			}

			ctx, cancel := a.context()
			defer cancel()

			hs := health.New(a.cfg.StageHealthAddr(ports.Pull), a.logger)
			hs.AddReadinessCheck("channels", health.Closed(s.Ready(), "supervisor"))
			hs.AddLivenessCheck("worker", health.True(s.WorkerAlive, "worker process"))

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return hs.Run(gctx) })
			g.Go(func() error { return s.Run(gctx) })
			err = g.Wait()
			if errors.Is(err, supervisor.ErrWorkerExited) {
				return &exitError{code: 1, err: err}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&workerExec, "worker-exec", "", "worker executable (default: the stage descriptor's)")
	cmd.Flags().StringArrayVar(&workerArgs, "worker-arg", nil, "extra leading worker argument, repeatable")
	return cmd
}

// workerCommand resolves the executable for the stage owning stateTopic. Stages built into this
// binary run as "heron worker".
func (a *app) workerCommand(stateTopic, exec string, extra []string) (supervisor.Command, error) {
	if exec == "" {
		id, err := topic.ParseStage(stateTopic)
		if err != nil {
			return supervisor.Command{}, err
		}
		st, ok := a.registry.Lookup(id.OpName)
		if !ok {
			return supervisor.Command{}, fmt.Errorf("no stage named %q and no --worker-exec", id.OpName)
		}
		exec = st.Descriptor.WorkerDefaultExecutable
	}
	if exec != inTreeWorker {
		return supervisor.Command{Path: exec, Args: extra}, nil
	}

	self, err := os.Executable()
	if err != nil {
		return supervisor.Command{}, fmt.Errorf("resolve own executable: %w", err)
	}
	args := []string{"worker"}
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}
	if a.logLevel != "" {
		args = append(args, "--log-level", a.logLevel)
	}
	if a.logFormat != "" {
		args = append(args, "--log-format", a.logFormat)
	}
	return supervisor.Command{Path: self, Args: append(args, extra...)}, nil
}
