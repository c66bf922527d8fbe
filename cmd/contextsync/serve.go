package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	api "github.com/fyrsmithlabs/contextsync/internal/http"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
	"github.com/fyrsmithlabs/contextsync/internal/telemetry"
)

// noticeBacklog bounds how many notices the API keeps for polling clients.
const noticeBacklog = 100

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the auto-sync daemon",
		Long: `Run the auto-sync daemon.

The daemon checks every enabled project on the configured interval, serves
the HTTP API and reloads the sync section when the config file changes.
It stops cleanly on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d, err := newDaemon(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return d.run(cmd.Context())
		},
	}
}

// daemon holds everything `serve` wires together.
type daemon struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  project.Manager
	coord     *autosync.Coordinator
	notices   *autosync.Broadcaster
	watcher   *config.Watcher
	server    *api.Server
}

// newDaemon initializes all dependencies:
//  1. Logger and telemetry
//  2. Project registry
//  3. Git adapter wrapped in the per-folder lock
//  4. Notifiers and the coordinator
//  5. Config file watcher
//  6. HTTP server
func newDaemon(ctx context.Context, cfg *config.Config) (*daemon, error) {
	logger, err := newLogger(cfg.Log, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Strings("problems", h.Problems))
	}

	registry, err := project.Open(cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("opening project registry: %w", err)
	}

	d := &daemon{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		registry:  registry,
		notices:   autosync.NewBroadcaster(noticeBacklog),
	}

	path := configPath
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	if d.watcher, err = config.NewWatcher(path, cfg); err != nil {
		// Live reload is optional; the daemon still runs on the loaded config.
		logger.Warn(ctx, "config watcher unavailable", zap.Error(err))
		d.watcher = nil
	}

	d.coord = autosync.NewCoordinator(newAdapter(cfg.Sync.Backend), registry, d.syncConfig,
		autosync.WithLogger(logger.Named("autosync")),
		autosync.WithNotifier(autosync.MultiNotifier{autosync.NewLogNotifier(logger), d.notices}),
		autosync.WithTracerProvider(tel.TracerProvider()),
	)

	if cfg.Server.Enabled {
		d.server, err = api.NewServer(d.coord, registry, d.notices, logger.Named("http"), &api.Config{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.Port,
			WebhookSecret: cfg.Server.WebhookSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("creating http server: %w", err)
		}
	}

	return d, nil
}

// syncConfig is the coordinator's ConfigSource. It follows live edits when
// the watcher is running.
func (d *daemon) syncConfig() config.SyncConfig {
	if d.watcher != nil {
		return d.watcher.Current().Sync
	}
	return d.cfg.Sync
}

// run blocks until ctx is cancelled, then shuts everything down.
func (d *daemon) run(ctx context.Context) error {
	defer func() {
		_ = d.logger.Sync()
	}()

	d.logger.Info(ctx, "starting contextsync",
		zap.String("version", version),
		zap.String("workspace", d.cfg.Workspace.Root),
		zap.String("backend", d.cfg.Sync.Backend),
		zap.Int("interval_minutes", d.cfg.Sync.IntervalMinutes),
		zap.Bool("auto_merge", d.cfg.Sync.AutoMerge),
	)

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			d.logger.Warn(ctx, "config watcher failed to start", zap.Error(err))
		} else {
			defer d.watcher.Stop()
			go autosync.NewConfigWatcher(d.coord, d.logger.Named("config")).Run(ctx, d.watcher.Changes(), d.watcher.Errors())
		}
	}

	if err := d.coord.Start(ctx); err != nil && !errors.Is(err, autosync.ErrDisabled) {
		return fmt.Errorf("starting auto-sync: %w", err)
	}

	var runErr error
	if d.server != nil {
		runErr = d.server.Start(ctx)
	} else {
		<-ctx.Done()
	}

	d.shutdown()
	return runErr
}

// shutdown stops the coordinator, waits for in-flight cycles and flushes
// telemetry within the configured timeout.
func (d *daemon) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	d.logger.Info(ctx, "shutting down")

	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			d.logger.Warn(ctx, "http server shutdown failed", zap.Error(err))
		}
	}

	if err := d.coord.Stop(); err != nil && !errors.Is(err, autosync.ErrNotRunning) {
		d.logger.Warn(ctx, "stopping auto-sync failed", zap.Error(err))
	}

	waited := make(chan struct{})
	go func() {
		d.coord.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		d.logger.Warn(ctx, "in-flight cycle did not finish before shutdown timeout")
	}

	if err := d.telemetry.Shutdown(ctx); err != nil {
		d.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}

	d.logger.Info(ctx, "shutdown complete")
}

// newAdapter selects the git backend and serializes work per folder.
func newAdapter(backend string) gitops.Adapter {
	var next gitops.Adapter
	switch backend {
	case config.BackendGoGit:
		next = gitops.NewGoGitAdapter()
	default:
		next = gitops.NewCLIAdapter()
	}
	return gitops.NewLocker(next)
}

// newLogger builds the process logger. stderr keeps stdout free for the MCP
// protocol.
func newLogger(lc config.LogConfig, stderr bool) (*logging.Logger, error) {
	cfg, err := logging.FromAppConfig(lc)
	if err != nil {
		return nil, err
	}
	cfg.Output.Stderr = stderr

	var provider log.LoggerProvider
	if cfg.Output.OTEL {
		provider = global.GetLoggerProvider()
	}
	return logging.NewLogger(cfg, provider)
}
