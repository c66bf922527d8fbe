package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextsync/internal/mcp"
	"github.com/fyrsmithlabs/contextsync/internal/monitor"
)

func newMonitorCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live dashboard of the running daemon",
		Long: `Show a live dashboard of the running daemon: state, pending
projects, per-project sync status and recent notices.

Keys: [c] check now, [r] refresh, [q] quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if interval < time.Second {
				return fmt.Errorf("interval must be at least 1s, got %v", interval)
			}

			model := monitor.NewModel(mcp.NewDaemonClient(daemonURL(cfg)), interval)
			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil && cmd.Context().Err() == nil {
				return fmt.Errorf("running dashboard: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}
