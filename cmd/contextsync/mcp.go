package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextsync/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long: `Run the MCP server on stdio for chat clients.

Tool calls are delegated to the daemon's HTTP API, so every session sees
the same pending list. Start the daemon with "contextsync serve" first.

Example client configuration:

  {
    "mcpServers": {
      "contextsync": {"command": "contextsync", "args": ["mcp"]}
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// stdout carries the protocol.
			logger, err := newLogger(cfg.Log, true)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx := cmd.Context()
			url := daemonURL(cfg)
			logger.Info(ctx, "starting mcp stdio server", zap.String("daemon_url", url))

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "contextsync",
				Version: version,
				Logger:  logger.Named("mcp"),
			}, mcp.NewDaemonClient(url))
			if err != nil {
				return fmt.Errorf("failed to create mcp server: %w", err)
			}

			fmt.Fprintf(os.Stderr, "contextsync mcp started (delegating to daemon at %s)\n", url)

			if err := server.Run(ctx); err != nil {
				return fmt.Errorf("mcp server error: %w", err)
			}
			logger.Info(ctx, "mcp stdio server shutdown complete")
			return nil
		},
	}
}
