package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	cfg, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, cfg)
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_ReportsChangedKeys(t *testing.T) {
	path := writeConfig(t, "sync:\n  interval_minutes: 15\n")
	w := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("sync:\n  interval_minutes: 20\n  auto_merge: true\n"), 0600))

	select {
	case change := <-w.Changes():
		assert.Equal(t, []string{"sync.auto_merge", "sync.interval_minutes"}, change.Keys)
		assert.Equal(t, 20, change.Config.Sync.IntervalMinutes)
		assert.Equal(t, change.Config, w.Current())
	case err := <-w.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestWatcher_RejectsInvalidEdit(t *testing.T) {
	path := writeConfig(t, "sync:\n  interval_minutes: 15\n")
	w := startWatcher(t, path)
	before := w.Current()

	require.NoError(t, os.WriteFile(path, []byte("sync:\n  interval_minutes: 1\n"), 0600))

	select {
	case err := <-w.Errors():
		assert.ErrorIs(t, err, ErrConfigInvalid)
	case change := <-w.Changes():
		t.Fatalf("invalid edit accepted: %v", change.Keys)
	case <-time.After(5 * time.Second):
		t.Fatal("no error delivered")
	}
	assert.Same(t, before, w.Current())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfig(t, "sync:\n  enabled: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, cfg)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
}
