package autosync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

// gitFolder creates a folder with a .git marker directory.
func gitFolder(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	return dir
}

// plainFolder creates a folder without a .git marker.
func plainFolder(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

type fakeRegistry struct {
	mu     sync.Mutex
	refs   []project.Ref
	synced map[string]int
	err    error
}

func newFakeRegistry(refs ...project.Ref) *fakeRegistry {
	return &fakeRegistry{refs: refs, synced: make(map[string]int)}
}

func (r *fakeRegistry) Projects(context.Context) ([]project.Ref, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]project.Ref(nil), r.refs...), nil
}

func (r *fakeRegistry) RecordSyncTimestamp(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced[name]++
	return nil
}

func (r *fakeRegistry) syncCount(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced[name]
}

// fakeAdapter serves canned answers keyed by folder path. When gate is set,
// Fetch blocks until it is closed.
type fakeAdapter struct {
	mu       sync.Mutex
	behind   map[string]int
	fetchErr map[string]error
	pullErr  map[string]error
	fetches  map[string]int
	pulls    map[string]int
	gate     chan struct{}
	entered  chan string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		behind:   make(map[string]int),
		fetchErr: make(map[string]error),
		pullErr:  make(map[string]error),
		fetches:  make(map[string]int),
		pulls:    make(map[string]int),
	}
}

func (f *fakeAdapter) Fetch(_ context.Context, path string) error {
	f.mu.Lock()
	f.fetches[path]++
	gate, entered, err := f.gate, f.entered, f.fetchErr[path]
	f.mu.Unlock()

	if entered != nil {
		entered <- path
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAdapter) CommitsBehind(_ context.Context, path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.behind[path], nil
}

func (f *fakeAdapter) Pull(_ context.Context, path string) (*gitops.PullResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls[path]++
	if err := f.pullErr[path]; err != nil {
		return nil, err
	}
	n := f.behind[path]
	f.behind[path] = 0
	return &gitops.PullResult{ChangedFileCount: n}, nil
}

func (f *fakeAdapter) setBehind(path string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behind[path] = n
}

func (f *fakeAdapter) fetchCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[path]
}

func (f *fakeAdapter) pullCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls[path]
}

func (f *fakeAdapter) totalPulls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.pulls {
		n += c
	}
	return n
}

// block makes subsequent fetches wait for the returned release function.
func (f *fakeAdapter) block(buffer int) (entered <-chan string, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan string, buffer)
	gate := f.gate
	var once sync.Once
	return f.entered, func() { once.Do(func() { close(gate) }) }
}

type recordingNotifier struct {
	mu        sync.Mutex
	updates   []UpdateNotice
	conflicts []ConflictNotice
}

func (n *recordingNotifier) NotifyUpdates(_ context.Context, notice UpdateNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, notice)
}

func (n *recordingNotifier) NotifyConflict(_ context.Context, notice ConflictNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conflicts = append(n.conflicts, notice)
}

func (n *recordingNotifier) Updates() []UpdateNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]UpdateNotice(nil), n.updates...)
}

func (n *recordingNotifier) Conflicts() []ConflictNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ConflictNotice(nil), n.conflicts...)
}

// configHolder is a mutable ConfigSource.
type configHolder struct {
	mu  sync.Mutex
	cfg config.SyncConfig
}

func newConfigHolder(mutate func(*config.SyncConfig)) *configHolder {
	cfg := config.Default().Sync
	cfg.RunOnStartup = false
	if mutate != nil {
		mutate(&cfg)
	}
	return &configHolder{cfg: cfg}
}

func (h *configHolder) Get() config.SyncConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

func (h *configHolder) Set(mutate func(*config.SyncConfig)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mutate(&h.cfg)
}

type fakeTicker struct {
	d       time.Duration
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.once.Do(func() { close(f.stopped) }) }

func (f *fakeTicker) isStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

type tickerFactory struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (tf *tickerFactory) New(d time.Duration) Ticker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	t := &fakeTicker{d: d, c: make(chan time.Time, 1), stopped: make(chan struct{})}
	tf.tickers = append(tf.tickers, t)
	return t
}

func (tf *tickerFactory) All() []*fakeTicker {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return append([]*fakeTicker(nil), tf.tickers...)
}

type harness struct {
	coord    *Coordinator
	adapter  *fakeAdapter
	registry *fakeRegistry
	config   *configHolder
	notifier *recordingNotifier
	tickers  *tickerFactory
	metrics  *Metrics
	logger   *logging.TestLogger
}

func newHarness(t *testing.T, cfg *configHolder, refs ...project.Ref) *harness {
	t.Helper()
	h := &harness{
		adapter:  newFakeAdapter(),
		registry: newFakeRegistry(refs...),
		config:   cfg,
		notifier: &recordingNotifier{},
		tickers:  &tickerFactory{},
		metrics:  newMetrics(prometheus.NewRegistry()),
		logger:   logging.NewTestLogger(),
	}
	h.coord = NewCoordinator(h.adapter, h.registry, cfg.Get,
		WithNotifier(h.notifier),
		WithLogger(h.logger.Logger),
		WithMetrics(h.metrics),
		WithTicker(h.tickers.New),
	)
	t.Cleanup(func() {
		_ = h.coord.Stop()
		h.coord.Wait()
	})
	return h
}
