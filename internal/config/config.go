// Package config provides configuration loading for contextsync.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then CONTEXTSYNC_* environment variables. The sync section is re-read by
// the auto-sync coordinator at the top of every cycle, and Watcher reports
// live edits to the file as sets of changed keys.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// ErrConfigInvalid is returned when a configuration value is out of range.
var ErrConfigInvalid = errors.New("invalid configuration")

// Sync interval bounds, in minutes.
const (
	MinIntervalMinutes = 5
	MaxIntervalMinutes = 1440
)

// Backend names for the git operations adapter.
const (
	BackendCLI   = "cli"
	BackendGoGit = "gogit"
)

// Config holds the complete contextsync configuration.
type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace"`
	Sync      SyncConfig      `koanf:"sync"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// WorkspaceConfig locates the context projects and their metadata.
type WorkspaceConfig struct {
	// Root is the workspace folder holding context project folders.
	Root string `koanf:"root"`

	// Registry is the project metadata file. Defaults to
	// <root>/.contextsync/projects.json.
	Registry string `koanf:"registry"`
}

// SyncConfig is the auto-sync policy. The coordinator treats it as an
// immutable snapshot per cycle.
type SyncConfig struct {
	Enabled         bool    `koanf:"enabled"`
	IntervalMinutes int     `koanf:"interval_minutes"`
	AutoMerge       bool    `koanf:"auto_merge"`
	NotifyOnUpdates bool    `koanf:"notify_on_updates"`
	RunOnStartup    bool    `koanf:"run_on_startup"`
	MaxParallel     int     `koanf:"max_parallel"`
	FetchRate       float64 `koanf:"fetch_rate"` // fetches per second, 0 = unlimited
	Backend         string  `koanf:"backend"`
}

// Interval returns the check interval as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Validate reports out-of-range sync settings as ErrConfigInvalid.
func (s SyncConfig) Validate() error {
	if s.IntervalMinutes < MinIntervalMinutes || s.IntervalMinutes > MaxIntervalMinutes {
		return fmt.Errorf("%w: sync.interval_minutes must be between %d and %d, got %d",
			ErrConfigInvalid, MinIntervalMinutes, MaxIntervalMinutes, s.IntervalMinutes)
	}
	if s.MaxParallel < 1 || s.MaxParallel > 64 {
		return fmt.Errorf("%w: sync.max_parallel must be between 1 and 64, got %d", ErrConfigInvalid, s.MaxParallel)
	}
	if s.FetchRate < 0 {
		return fmt.Errorf("%w: sync.fetch_rate cannot be negative", ErrConfigInvalid)
	}
	if s.Backend != BackendCLI && s.Backend != BackendGoGit {
		return fmt.Errorf("%w: sync.backend must be %q or %q, got %q", ErrConfigInvalid, BackendCLI, BackendGoGit, s.Backend)
	}
	return nil
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Enabled         bool     `koanf:"enabled"`
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	// WebhookSecret enables POST /api/v1/webhooks/github when set.
	WebhookSecret Secret `koanf:"webhook_secret"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig selects where OpenTelemetry traces and metrics go.
// Disabled by default; most users have no collector.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"` // "grpc" or "http/protobuf"
	Insecure       bool     `koanf:"insecure"`
	TLSSkipVerify  bool     `koanf:"tls_skip_verify"`
	SampleRate     float64  `koanf:"sample_rate"`
	ExportInterval Duration `koanf:"export_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root: ".",
		},
		Sync: SyncConfig{
			Enabled:         true,
			IntervalMinutes: 30,
			AutoMerge:       false,
			NotifyOnUpdates: true,
			RunOnStartup:    true,
			MaxParallel:     4,
			FetchRate:       0,
			Backend:         BackendCLI,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			SampleRate:     1.0,
			ExportInterval: Duration(15 * time.Second),
		},
	}
}

// RegistryPath returns the project metadata file path.
func (c *Config) RegistryPath() string {
	if c.Workspace.Registry != "" {
		return c.Workspace.Registry
	}
	return filepath.Join(c.Workspace.Root, ".contextsync", "projects.json")
}

// Validate validates the configuration.
//
// Returns an error wrapping ErrConfigInvalid if:
//   - the sync section is out of range
//   - the server port is not between 1 and 65535 while the server is enabled
//   - the shutdown timeout is not positive
//   - the log format is not json or console
func (c *Config) Validate() error {
	if c.Workspace.Root == "" {
		return fmt.Errorf("%w: workspace.root cannot be empty", ErrConfigInvalid)
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("%w: invalid server port %d (must be 1-65535)", ErrConfigInvalid, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrConfigInvalid)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("%w: log.format must be 'json' or 'console', got %q", ErrConfigInvalid, c.Log.Format)
	}
	return nil
}

// Flatten returns every setting keyed by its dotted path, with values
// rendered as strings. Watcher diffs two flattened configs to find changed
// keys.
func (c *Config) Flatten() map[string]string {
	return map[string]string{
		"workspace.root":            c.Workspace.Root,
		"workspace.registry":        c.Workspace.Registry,
		"sync.enabled":              strconv.FormatBool(c.Sync.Enabled),
		"sync.interval_minutes":     strconv.Itoa(c.Sync.IntervalMinutes),
		"sync.auto_merge":           strconv.FormatBool(c.Sync.AutoMerge),
		"sync.notify_on_updates":    strconv.FormatBool(c.Sync.NotifyOnUpdates),
		"sync.run_on_startup":       strconv.FormatBool(c.Sync.RunOnStartup),
		"sync.max_parallel":         strconv.Itoa(c.Sync.MaxParallel),
		"sync.fetch_rate":           strconv.FormatFloat(c.Sync.FetchRate, 'f', -1, 64),
		"sync.backend":              c.Sync.Backend,
		"server.enabled":            strconv.FormatBool(c.Server.Enabled),
		"server.host":               c.Server.Host,
		"server.port":               strconv.Itoa(c.Server.Port),
		"server.shutdown_timeout":   c.Server.ShutdownTimeout.Duration().String(),
		"server.webhook_secret":     c.Server.WebhookSecret.String(),
		"log.level":                 c.Log.Level,
		"log.format":                c.Log.Format,
		"log.otel":                  strconv.FormatBool(c.Log.OTEL),
		"telemetry.enabled":         strconv.FormatBool(c.Telemetry.Enabled),
		"telemetry.endpoint":        c.Telemetry.Endpoint,
		"telemetry.protocol":        c.Telemetry.Protocol,
		"telemetry.insecure":        strconv.FormatBool(c.Telemetry.Insecure),
		"telemetry.tls_skip_verify": strconv.FormatBool(c.Telemetry.TLSSkipVerify),
		"telemetry.sample_rate":     strconv.FormatFloat(c.Telemetry.SampleRate, 'f', -1, 64),
		"telemetry.export_interval": c.Telemetry.ExportInterval.Duration().String(),
	}
}

// ChangedKeys returns the sorted dotted keys whose values differ.
func ChangedKeys(prev, next *Config) []string {
	before := prev.Flatten()
	after := next.Flatten()

	var keys []string
	for k, v := range after {
		if before[k] != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
