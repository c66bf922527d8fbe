package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
workspace:
  root: /srv/context
sync:
  interval_minutes: 15
  auto_merge: true
  backend: gogit
server:
  port: 8088
  shutdown_timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/context", cfg.Workspace.Root)
	assert.Equal(t, 15, cfg.Sync.IntervalMinutes)
	assert.True(t, cfg.Sync.AutoMerge)
	assert.Equal(t, BackendGoGit, cfg.Sync.Backend)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())

	// Keys absent from the file keep their defaults.
	assert.True(t, cfg.Sync.NotifyOnUpdates)
	assert.Equal(t, 4, cfg.Sync.MaxParallel)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "sync:\n  interval_minutes: 15\n")
	t.Setenv("CONTEXTSYNC_SYNC_INTERVAL_MINUTES", "60")
	t.Setenv("CONTEXTSYNC_SYNC_AUTO_MERGE", "true")
	t.Setenv("CONTEXTSYNC_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Sync.IntervalMinutes)
	assert.True(t, cfg.Sync.AutoMerge)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_RejectsOutOfRangeInterval(t *testing.T) {
	path := writeConfig(t, "sync:\n  interval_minutes: 2\n")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "sync: [unterminated\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsWorldWritableFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeConfig(t, "sync:\n  interval_minutes: 15\n")
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_RejectsOversizedFile(t *testing.T) {
	big := make([]byte, maxConfigFileSize+1)
	for i := range big {
		big[i] = '#'
	}
	path := writeConfig(t, string(big))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"CONTEXTSYNC_SYNC_INTERVAL_MINUTES": "sync.interval_minutes",
		"CONTEXTSYNC_SERVER_PORT":           "server.port",
		"CONTEXTSYNC_WORKSPACE_ROOT":        "workspace.root",
		"CONTEXTSYNC_DEBUG":                 "debug",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestEnsureConfigDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "config.yaml")
	require.NoError(t, EnsureConfigDir(path))

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
