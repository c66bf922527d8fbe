package autosync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

// Lifecycle errors reported synchronously by Start and Stop.
var (
	ErrAlreadyRunning = errors.New("auto-sync already running")
	ErrNotRunning     = errors.New("auto-sync not running")
	ErrDisabled       = errors.New("auto-sync disabled in configuration")
)

// Registry is the slice of the project registry the coordinator uses.
type Registry interface {
	Projects(ctx context.Context) ([]project.Ref, error)
	RecordSyncTimestamp(ctx context.Context, name string) error
}

// ConfigSource returns the current sync configuration. It is called once at
// the top of every cycle and on Start.
type ConfigSource func() config.SyncConfig

// Ticker is the subset of time.Ticker the coordinator needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

const tracerName = "github.com/fyrsmithlabs/contextsync/internal/autosync"

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier sets where notices go. Defaults to a LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metrics. Defaults to the process-wide metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTicker overrides how the interval timer is created.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(c *Coordinator) { c.newTicker = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTracerProvider sets where cycle and pull spans go. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Coordinator) { c.tracer = tp.Tracer(tracerName) }
}

// Coordinator runs update-check cycles over the registered projects and
// owns the pending-updates set.
type Coordinator struct {
	adapter   gitops.Adapter
	registry  Registry
	config    ConfigSource
	checker   *Checker
	notifier  Notifier
	logger    *logging.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	newTicker func(time.Duration) Ticker
	now       func() time.Time

	// running is the cycle re-entry guard. It only changes under mu.
	running atomic.Bool
	cycles  sync.WaitGroup

	mu         sync.Mutex
	stop       chan struct{} // non-nil while started
	loopDone   chan struct{}
	generation uint64
	inFlight   uint64       // generation the running cycle was claimed under
	rerun      *queuedCycle // trigger that arrived while a stale cycle held the guard
	pending    map[string]struct{}
	lastCheck  *time.Time
}

// queuedCycle is a trigger deferred until a discarded cycle releases the
// guard.
type queuedCycle struct {
	ctx     context.Context
	trigger Trigger
}

// NewCoordinator creates a stopped coordinator.
func NewCoordinator(adapter gitops.Adapter, registry Registry, cfg ConfigSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		adapter:   adapter,
		registry:  registry,
		config:    cfg,
		logger:    logging.NewNop(),
		tracer:    otel.Tracer(tracerName),
		newTicker: newStdTicker,
		now:       time.Now,
		pending:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	if c.notifier == nil {
		c.notifier = NewLogNotifier(c.logger)
	}
	c.checker = NewChecker(adapter, c.logger, c.metrics)
	return c
}

// Start arms the interval timer and, when configured, runs one cycle
// immediately. ctx bounds the timer loop and every cycle it starts.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	cfg := c.config()
	if !cfg.Enabled {
		c.mu.Unlock()
		return ErrDisabled
	}

	c.generation++
	c.pending = make(map[string]struct{})
	c.lastCheck = nil
	c.metrics.PendingProjects.Set(0)

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stop = stop
	c.loopDone = done

	ticker := c.newTicker(cfg.Interval())
	go c.loop(ctx, ticker, stop, done)
	c.mu.Unlock()

	c.logger.Info(ctx, "auto-sync started",
		zap.Int("interval_minutes", cfg.IntervalMinutes),
		zap.Bool("auto_merge", cfg.AutoMerge),
	)

	if cfg.RunOnStartup {
		c.RunCycleAsync(ctx, TriggerStartup)
	}
	return nil
}

// Stop cancels the timer and resets the pending set. A cycle already in
// flight runs to completion but its results are discarded.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.stop == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	close(c.stop)
	c.stop = nil
	c.generation++
	c.pending = make(map[string]struct{})
	c.lastCheck = nil
	done := c.loopDone
	c.mu.Unlock()

	c.metrics.PendingProjects.Set(0)
	<-done

	c.logger.Info(context.Background(), "auto-sync stopped")
	return nil
}

// Running reports whether the coordinator is started.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Wait blocks until every cycle started with RunCycleAsync has finished.
func (c *Coordinator) Wait() {
	c.cycles.Wait()
}

func (c *Coordinator) loop(ctx context.Context, ticker Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C():
			// A tick racing Stop must not start a cycle.
			select {
			case <-stop:
				return
			default:
			}
			c.RunCycleAsync(ctx, TriggerInterval)
		}
	}
}

// CheckForUpdates runs one cycle on behalf of an API caller and returns
// once it completes. It returns false without doing anything when a cycle
// is already in flight.
func (c *Coordinator) CheckForUpdates(ctx context.Context) bool {
	return c.RunCycle(ctx, TriggerAPI)
}

// ManualCheck is CheckForUpdates for a user-invoked command. Progress
// display is left to the caller.
func (c *Coordinator) ManualCheck(ctx context.Context) bool {
	return c.RunCycle(ctx, TriggerManual)
}

// RunCycle runs one cycle synchronously unless one is already in flight.
func (c *Coordinator) RunCycle(ctx context.Context, trigger Trigger) bool {
	gen, ok := c.begin(ctx, trigger)
	if !ok {
		return false
	}
	defer c.finish()

	c.cycle(ctx, trigger, gen)
	return true
}

// RunCycleAsync claims the cycle slot synchronously and runs the cycle on
// a new goroutine. It returns false when a cycle is already in flight.
func (c *Coordinator) RunCycleAsync(ctx context.Context, trigger Trigger) bool {
	gen, ok := c.begin(ctx, trigger)
	if !ok {
		return false
	}

	c.cycles.Add(1)
	go func() {
		defer c.cycles.Done()
		defer c.finish()
		c.cycle(ctx, trigger, gen)
	}()
	return true
}

// begin claims the cycle slot and returns the generation the cycle runs
// under. A trigger that loses the race is coalesced into the running cycle,
// unless that cycle belongs to an earlier generation and will be discarded:
// then the trigger is queued and runs as soon as the slot is released.
func (c *Coordinator) begin(ctx context.Context, trigger Trigger) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.CompareAndSwap(false, true) {
		c.metrics.CyclesCoalescedTotal.Inc()
		if c.inFlight != c.generation && (c.rerun == nil || trigger == TriggerManual) {
			c.rerun = &queuedCycle{ctx: ctx, trigger: trigger}
			c.logger.Debug(ctx, "update check queued behind discarded cycle", zap.String("trigger", string(trigger)))
			return 0, false
		}
		c.logger.Debug(ctx, "update check already in progress", zap.String("trigger", string(trigger)))
		return 0, false
	}
	c.inFlight = c.generation
	c.metrics.CyclesTotal.WithLabelValues(string(trigger)).Inc()
	return c.generation, true
}

// finish releases the cycle slot and starts a queued trigger, if any.
// Timer and startup triggers are dropped once the coordinator is stopped;
// caller triggers run regardless, like any check while stopped.
func (c *Coordinator) finish() {
	c.mu.Lock()
	next := c.rerun
	c.rerun = nil
	c.running.Store(false)
	started := c.stop != nil
	c.mu.Unlock()

	if next == nil || next.ctx.Err() != nil {
		return
	}
	if !started && (next.trigger == TriggerStartup || next.trigger == TriggerInterval) {
		return
	}
	c.RunCycleAsync(next.ctx, next.trigger)
}

// current reports whether gen is still the coordinator's generation.
func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// cycleResults accumulates per-project outcomes during one cycle.
type cycleResults struct {
	mu      sync.Mutex
	pending map[string]struct{}
	merged  []string
	checked []CheckResult
}

func (c *Coordinator) cycle(ctx context.Context, trigger Trigger, gen uint64) {
	cfg := c.config()
	c.checker.SetRate(cfg.FetchRate)

	ctx = logging.WithCycle(ctx, uuid.NewString(), string(trigger))
	ctx, span := c.tracer.Start(ctx, "autosync.cycle", trace.WithAttributes(
		attribute.String("trigger", string(trigger)),
		attribute.Bool("auto_merge", cfg.AutoMerge),
	))
	defer span.End()

	start := c.now()
	defer func() {
		c.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	if c.generation == gen {
		c.lastCheck = &start
		c.pending = make(map[string]struct{})
	}
	c.mu.Unlock()

	projects := c.eligible(ctx)
	span.SetAttributes(attribute.Int("projects", len(projects)))

	results := &cycleResults{pending: make(map[string]struct{})}
	if len(projects) > 0 {
		var g errgroup.Group
		g.SetLimit(cfg.MaxParallel)
		for _, p := range projects {
			g.Go(func() error {
				c.syncProject(logging.WithProject(ctx, p.Name), cfg, p, gen, results)
				return nil
			})
		}
		_ = g.Wait()
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.metrics.CyclesDiscardedTotal.Inc()
		span.SetAttributes(attribute.Bool("discarded", true))
		c.logger.Info(ctx, "discarding results of cycle that outlived stop")
		return
	}
	c.pending = results.pending
	pendingNames := sortedNames(results.pending)
	c.mu.Unlock()

	c.metrics.PendingProjects.Set(float64(len(pendingNames)))
	sort.Strings(results.merged)

	c.logger.Info(ctx, "update check complete",
		zap.Int("checked", len(results.checked)),
		zap.Strings("pending", pendingNames),
		zap.Strings("merged", results.merged),
		zap.Duration("duration", time.Since(start)),
	)

	if cfg.NotifyOnUpdates {
		if notice, ok := aggregate(cfg.AutoMerge, results.merged, pendingNames); ok {
			c.notifier.NotifyUpdates(ctx, notice)
		}
	}
}

// aggregate builds the one notice a cycle emits, if any. In auto-merge mode
// merged projects are reported as done; otherwise pending ones are reported
// as actionable.
func aggregate(autoMerge bool, merged, pending []string) (UpdateNotice, bool) {
	if autoMerge && len(merged) > 0 {
		return UpdateNotice{Count: len(merged), ProjectNames: merged, AutoMerged: true}, true
	}
	if len(pending) > 0 {
		return UpdateNotice{Count: len(pending), ProjectNames: pending}, true
	}
	return UpdateNotice{}, false
}

// eligible lists enabled projects whose folders are git-backed right now.
func (c *Coordinator) eligible(ctx context.Context) []project.Ref {
	refs, err := c.registry.Projects(ctx)
	if err != nil {
		c.logger.Error(ctx, "listing projects failed", zap.Error(err))
		return nil
	}

	out := make([]project.Ref, 0, len(refs))
	for _, r := range refs {
		if r.Enabled && gitops.IsGitBacked(r.Path) {
			out = append(out, r)
		}
	}
	return out
}

func (c *Coordinator) syncProject(ctx context.Context, cfg config.SyncConfig, p project.Ref, gen uint64, results *cycleResults) {
	res := c.checker.Check(ctx, p)

	results.mu.Lock()
	results.checked = append(results.checked, res)
	if res.HasUpdate {
		results.pending[p.Name] = struct{}{}
	}
	results.mu.Unlock()

	if !res.HasUpdate || !cfg.AutoMerge {
		return
	}

	if _, err := c.pull(ctx, p); err != nil {
		// A cycle that outlived Stop stays silent.
		if errors.Is(err, gitops.ErrMergeConflict) && c.current(gen) {
			c.notifier.NotifyConflict(ctx, ConflictNotice{Project: p.Name, Err: err})
		}
		return
	}

	results.mu.Lock()
	delete(results.pending, p.Name)
	results.merged = append(results.merged, p.Name)
	results.mu.Unlock()
}

// pull pulls p and records the sync timestamp on success. The folder really
// changed, so the timestamp is recorded even for a discarded cycle. Merge
// conflicts are left to the caller to report; other failures are logged.
func (c *Coordinator) pull(ctx context.Context, p project.Ref) (*gitops.PullResult, error) {
	ctx, span := c.tracer.Start(ctx, "autosync.pull", trace.WithAttributes(attribute.String("project", p.Name)))
	defer span.End()

	res, err := c.adapter.Pull(ctx, p.Path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pull failed")
		if errors.Is(err, gitops.ErrMergeConflict) {
			c.metrics.PullsTotal.WithLabelValues("conflict").Inc()
		} else {
			c.metrics.PullsTotal.WithLabelValues("error").Inc()
			c.logger.Warn(ctx, "pull failed", zap.Error(err))
		}
		return nil, err
	}

	c.metrics.PullsTotal.WithLabelValues("success").Inc()
	c.logger.Info(ctx, "pulled upstream changes", zap.Int("changed_files", res.ChangedFileCount))

	if err := c.registry.RecordSyncTimestamp(ctx, p.Name); err != nil {
		c.logger.Warn(ctx, "recording sync timestamp failed", zap.Error(err))
	}
	return res, nil
}

// Pull updates a single project on demand, outside the cycle. On success
// the project leaves the pending set.
func (c *Coordinator) Pull(ctx context.Context, name string) (*gitops.PullResult, error) {
	refs, err := c.registry.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}

	var ref *project.Ref
	for i := range refs {
		if refs[i].Name == name {
			ref = &refs[i]
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: %s", project.ErrProjectNotFound, name)
	}
	if !gitops.IsGitBacked(ref.Path) {
		return nil, fmt.Errorf("%w: %s", gitops.ErrNotARepository, ref.Path)
	}

	ctx = logging.WithProject(ctx, name)
	res, err := c.pull(ctx, *ref)
	if err != nil {
		if errors.Is(err, gitops.ErrMergeConflict) {
			c.notifier.NotifyConflict(ctx, ConflictNotice{Project: name, Err: err})
		}
		return nil, err
	}

	c.mu.Lock()
	delete(c.pending, name)
	remaining := len(c.pending)
	c.mu.Unlock()
	c.metrics.PendingProjects.Set(float64(remaining))

	return res, nil
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
