package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// workerStopGrace is how long a worker gets between SIGTERM and SIGKILL.
const workerStopGrace = 2 * time.Second

// Command is a worker executable and its leading arguments. The Supervisor appends the launch
// flags (--port, --parameters-topic, --inputs, --stage).
type Command struct {
	Path string
	Args []string
	Env  []string
}

// Process is a running worker.
type Process interface {
	Pid() int
	// Wait blocks until the process exits.
	Wait() error
	Kill() error
}

// Launcher starts worker processes. The process must stop when ctx is cancelled.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// ExecLauncher starts workers as child processes and copies their stdout and stderr into the
// supervisor log, one entry per line.
type ExecLauncher struct {
	Logger *zap.Logger
}

// Launch starts cmd. Cancelling ctx sends SIGTERM, then SIGKILL after a grace period.
func (l ExecLauncher) Launch(ctx context.Context, c Command) (Process, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = workerStopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}

	p := &execProcess{cmd: cmd}
	logger = logger.With(zap.Int("pid", cmd.Process.Pid))
	p.readers.Add(2)
	go p.copyLines(stdout, logger)
	go p.copyLines(stderr, logger)
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	readers sync.WaitGroup
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

// Wait drains the output pipes before reaping the process.
func (p *execProcess) Wait() error {
	p.readers.Wait()
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) copyLines(r io.Reader, logger *zap.Logger) {
	defer p.readers.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch lvl := strings.ToLower(line); {
		case strings.Contains(lvl, "error") || strings.Contains(lvl, "fatal") || strings.Contains(lvl, "panic"):
			logger.Error("worker", zap.String("log", line))
		case strings.Contains(lvl, "warn"):
			logger.Warn("worker", zap.String("log", line))
		default:
			logger.Info("worker", zap.String("log", line))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading worker output failed", zap.Error(err))
	}
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, cmd Command) (Process, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, cmd Command) (Process, error) { return f(ctx, cmd) }
