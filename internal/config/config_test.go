package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval())
	assert.Equal(t, BackendCLI, cfg.Sync.Backend)
	assert.Equal(t, 4, cfg.Sync.MaxParallel)
}

func TestSyncConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SyncConfig)
		wantErr bool
	}{
		{"defaults", func(*SyncConfig) {}, false},
		{"minimum interval", func(s *SyncConfig) { s.IntervalMinutes = 5 }, false},
		{"maximum interval", func(s *SyncConfig) { s.IntervalMinutes = 1440 }, false},
		{"interval too small", func(s *SyncConfig) { s.IntervalMinutes = 4 }, true},
		{"interval too large", func(s *SyncConfig) { s.IntervalMinutes = 1441 }, true},
		{"zero parallel", func(s *SyncConfig) { s.MaxParallel = 0 }, true},
		{"too many parallel", func(s *SyncConfig) { s.MaxParallel = 65 }, true},
		{"negative fetch rate", func(s *SyncConfig) { s.FetchRate = -1 }, true},
		{"gogit backend", func(s *SyncConfig) { s.Backend = BackendGoGit }, false},
		{"unknown backend", func(s *SyncConfig) { s.Backend = "libgit2" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default().Sync
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfigInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("disabled server ignores port", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Enabled = false
		cfg.Server.Port = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := Default()
		cfg.Server.Port = 70000
		assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
	})

	t.Run("bad log format", func(t *testing.T) {
		cfg := Default()
		cfg.Log.Format = "xml"
		assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
	})

	t.Run("empty root", func(t *testing.T) {
		cfg := Default()
		cfg.Workspace.Root = ""
		assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
	})
}

func TestConfig_RegistryPath(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Root = "/work"
	assert.Equal(t, "/work/.contextsync/projects.json", cfg.RegistryPath())

	cfg.Workspace.Registry = "/elsewhere/projects.json"
	assert.Equal(t, "/elsewhere/projects.json", cfg.RegistryPath())
}

func TestChangedKeys(t *testing.T) {
	prev := Default()
	next := Default()
	assert.Empty(t, ChangedKeys(prev, next))

	next.Sync.IntervalMinutes = 10
	next.Sync.AutoMerge = true
	next.Log.Level = "debug"

	assert.Equal(t, []string{"log.level", "sync.auto_merge", "sync.interval_minutes"}, ChangedKeys(prev, next))
}
