package paramfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YAMLcase/Heron/params"
)

type call struct {
	topic  string
	values []any
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) Publish(stageTopic string, s params.Schema, values []any) error {
	if _, err := s.Coerce(values); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{stageTopic, values})
	return nil
}

func (r *recorder) snapshot() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func lookup(t *testing.T) SchemaLookup {
	t.Helper()
	s, err := params.NewSchema("Canny", []string{"Min Value", "Max Value"}, []string{"int", "int"}, []any{100, 200})
	require.NoError(t, err)
	return func(stage string) (params.Schema, bool) { return s, stage == "g##Canny##0" }
}

func write(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestSync_PublishesChangedEntriesOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	write(t, path, "parameters:\n  - topic: g##Canny##0\n    values:\n      Min Value: 50\n")

	rec := &recorder{}
	w := NewWatcher(path, rec, lookup(t), nil)

	n, err := w.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []any{50, int64(200)}, rec.snapshot()[0].values)

	n, err = w.Sync()
	require.NoError(t, err)
	assert.Zero(t, n, "unchanged entries are not republished")

	write(t, path, "parameters:\n  - topic: g##Canny##0\n    values:\n      Min Value: 60\n  - topic: g##Other##0\n")
	n, err = w.Sync()
	require.Error(t, err)
	assert.Equal(t, 1, n, "a bad entry does not block the others")
}

func TestEntry_UnknownParameter(t *testing.T) {
	s, _ := lookup(t)("g##Canny##0")
	_, err := Entry{Topic: "g##Canny##0", Values: map[string]any{"Sigma": 1}}.Vector(s)
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestWatcher_RepublishesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	write(t, path, "parameters:\n  - topic: g##Canny##0\n    values:\n      Min Value: 50\n")

	rec := &recorder{}
	w := NewWatcher(path, rec, lookup(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	write(t, path, "parameters:\n  - topic: g##Canny##0\n    values:\n      Min Value: 75\n")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []any{75, int64(200)}, rec.snapshot()[1].values)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
