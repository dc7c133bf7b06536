package supervisor

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExecLauncher_LogsOutputAndReportsExit(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	core, logs := observer.New(zapcore.DebugLevel)
	l := ExecLauncher{Logger: zap.New(core)}

	p, err := l.Launch(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "echo hello; echo 'something ERROR happened' >&2; exit 3"},
	})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	err = p.Wait()
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())

	assert.Equal(t, 1, logs.FilterField(zap.String("log", "hello")).FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}
