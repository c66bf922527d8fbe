// Package main implements the contextsync CLI.
//
// `contextsync serve` runs the auto-sync daemon with its HTTP API. The other
// commands either talk to that daemon or operate on the workspace directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextsync/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath overrides ~/.config/contextsync/config.yaml
	configPath string
	// serverURL overrides the daemon address derived from config
	serverURL string
	// verbose logs at the configured level instead of warn for one-shot
	// commands
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "contextsync",
		Short: "Keep context project folders in sync with their git remotes",
		Long: `contextsync periodically fetches every registered context project,
reports which ones have upstream changes and, when auto-merge is enabled,
pulls them.

Run "contextsync serve" to start the daemon, then use the other commands
or the MCP server to inspect and drive it.`,
		Version:      version,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/contextsync/config.yaml)")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "daemon URL (default from server.host/server.port)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level in one-shot commands")

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newStatusCmd(),
		newMonitorCmd(),
		newCheckCmd(),
		newPullCmd(),
		newProjectCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "contextsync by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// loadConfig loads configuration from --config or the default path.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// daemonURL returns --server or the address the daemon listens on.
func daemonURL(cfg *config.Config) string {
	if serverURL != "" {
		return serverURL
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}
