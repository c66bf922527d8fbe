package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize config watcher")

const defaultDebounce = 200 * time.Millisecond

// Change describes an accepted configuration edit.
type Change struct {
	// Keys are the dotted keys whose values changed, sorted.
	Keys []string

	// Config is the new configuration.
	Config *Config
}

// Watcher reloads a config file when it changes on disk.
//
// The parent directory is watched rather than the file so that editors
// which replace the file atomically are still observed. Edits that fail to
// parse or validate are reported on Errors and the previous configuration
// stays current.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	changes  chan Change
	errs     chan error
	stop     chan struct{}
	done     chan struct{}
	started  bool

	mu      sync.RWMutex
	current *Config
}

// NewWatcher creates a watcher for path, seeded with the configuration
// already loaded from it.
func NewWatcher(path string, current *Config) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		path:     abs,
		debounce: defaultDebounce,
		watcher:  fw,
		changes:  make(chan Change, 4),
		errs:     make(chan error, 4),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		current:  current,
	}, nil
}

// Start begins watching. Events are processed on a background goroutine
// until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	w.started = true
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
	if w.started {
		<-w.done
	}
}

// Changes returns the channel of accepted edits.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Errors returns the channel of rejected edits and watcher failures.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Current returns the most recently accepted configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors often emit several events per save.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.report(fmt.Errorf("config watcher: %w", err))
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.report(err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	w.mu.Unlock()

	keys := ChangedKeys(prev, next)
	if len(keys) == 0 {
		return
	}

	select {
	case w.changes <- Change{Keys: keys, Config: next}:
	case <-w.stop:
	}
}

// report delivers err without blocking the event loop.
func (w *Watcher) report(err error) {
	select {
	case w.errs <- err:
	default:
	}
}
