package autosync

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
)

const syncNamespace = "sync."

// backendKey selects the git adapter, which is built once at daemon start.
const backendKey = syncNamespace + "backend"

// lifecycle is the part of Coordinator the watcher drives.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// ConfigWatcher applies live configuration edits to a coordinator.
type ConfigWatcher struct {
	coord  lifecycle
	logger *logging.Logger
}

// NewConfigWatcher creates a watcher driving coord.
func NewConfigWatcher(coord *Coordinator, logger *logging.Logger) *ConfigWatcher {
	return &ConfigWatcher{coord: coord, logger: logger}
}

// HandleChange reacts to a set of changed keys. Keys outside the sync
// namespace are ignored. cfg is the already-validated new sync section.
//
//   - enabled turned on: Start
//   - enabled turned off: Stop
//   - any other sync key while running: Stop then Start, re-arming the timer
//
// A coordinator stopped through the API stays stopped when other sync keys
// change. The backend key only takes effect after a daemon restart.
func (w *ConfigWatcher) HandleChange(ctx context.Context, keys []string, cfg config.SyncConfig) error {
	enabledChanged, otherChanged := false, false
	for _, k := range keys {
		switch {
		case !strings.HasPrefix(k, syncNamespace):
		case k == syncNamespace+"enabled":
			enabledChanged = true
		case k == backendKey:
			w.logger.Warn(ctx, "sync.backend change requires a daemon restart", zap.String("backend", cfg.Backend))
		default:
			otherChanged = true
		}
	}

	switch {
	case !enabledChanged && !otherChanged:
		return nil
	case !cfg.Enabled:
		if !w.coord.Running() {
			return nil
		}
		w.logger.Info(ctx, "auto-sync disabled by configuration")
		return ignore(w.coord.Stop(), ErrNotRunning)
	case enabledChanged && !w.coord.Running():
		w.logger.Info(ctx, "auto-sync enabled by configuration")
		return ignore(w.coord.Start(ctx), ErrAlreadyRunning)
	case !w.coord.Running():
		return nil
	default:
		w.logger.Info(ctx, "restarting auto-sync for configuration change", zap.Strings("keys", keys))
		if err := ignore(w.coord.Stop(), ErrNotRunning); err != nil {
			return err
		}
		return w.coord.Start(ctx)
	}
}

// Run applies changes from a config.Watcher until ctx is done. Rejected
// edits are logged and leave the coordinator untouched.
func (w *ConfigWatcher) Run(ctx context.Context, changes <-chan config.Change, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := w.HandleChange(ctx, change.Keys, change.Config.Sync); err != nil {
				w.logger.Error(ctx, "applying configuration change failed", zap.Error(err))
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "ignoring configuration edit", zap.Error(err))
		}
	}
}

func ignore(err, target error) error {
	if errors.Is(err, target) {
		return nil
	}
	return err
}
