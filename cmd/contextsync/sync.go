package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextsync/internal/autosync"
	"github.com/fyrsmithlabs/contextsync/internal/config"
	"github.com/fyrsmithlabs/contextsync/internal/gitops"
	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/mcp"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon's auto-sync status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := mcp.NewDaemonClient(daemonURL(cfg)).Status(cmd.Context())
			if err != nil {
				if errors.Is(err, mcp.ErrDaemonUnavailable) {
					return fmt.Errorf("%w (is `contextsync serve` running?)", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprint(out, autosync.RenderStatus(st, time.Now()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check every enabled project for upstream changes now",
		Long: `Run one update check in this process and print the result.

Auto-merge follows sync.auto_merge from the configuration. Folders are
locked per project, so running this next to the daemon is safe.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			coord, cleanup, err := newLocalCoordinator(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer cleanup()

			return runCheck(cmd.Context(), coord, cmd.OutOrStdout())
		},
	}
}

// runCheck runs one manual cycle and reports the pending set.
func runCheck(ctx context.Context, coord *autosync.Coordinator, out io.Writer) error {
	fmt.Fprintln(out, "Checking for updates...")
	if !coord.ManualCheck(ctx) {
		fmt.Fprintln(out, "An update check is already in progress.")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pending := coord.ProjectsWithUpdates()
	if len(pending) == 0 {
		fmt.Fprintln(out, "All projects are up to date.")
		return nil
	}
	fmt.Fprintf(out, "%d project(s) with updates:\n", len(pending))
	for _, name := range pending {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <name>",
		Short: "Pull upstream changes into one project",
		Long: `Pull upstream changes into one project.

The pull goes through the daemon when it is running so its pending list
stays accurate, and runs in this process otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			name := args[0]

			res, err := mcp.NewDaemonClient(daemonURL(cfg)).Pull(ctx, name)
			if errors.Is(err, mcp.ErrDaemonUnavailable) {
				coord, cleanup, cerr := newLocalCoordinator(cfg, cmd.OutOrStdout())
				if cerr != nil {
					return cerr
				}
				defer cleanup()
				res, err = coord.Pull(ctx, name)
			}
			if err != nil {
				return pullError(name, err)
			}

			printPull(cmd.OutOrStdout(), name, res)
			return nil
		},
	}
}

func pullError(name string, err error) error {
	switch {
	case errors.Is(err, gitops.ErrMergeConflict):
		return fmt.Errorf("could not merge upstream changes into %s; resolve the conflict in the folder and retry: %w", name, err)
	case errors.Is(err, project.ErrProjectNotFound):
		return fmt.Errorf("no project named %q (see `contextsync project list`)", name)
	default:
		return fmt.Errorf("pulling %s: %w", name, err)
	}
}

func printPull(out io.Writer, name string, res *gitops.PullResult) {
	if res.ChangedFileCount == 0 {
		fmt.Fprintf(out, "%s is already up to date.\n", name)
		return
	}
	fmt.Fprintf(out, "Pulled %s: %d file(s) changed\n", name, res.ChangedFileCount)
	for _, f := range res.ChangedFiles {
		fmt.Fprintf(out, "  %s\n", f)
	}
}

// newLocalCoordinator builds a stopped coordinator for one-shot commands.
// Notices are printed to out.
func newLocalCoordinator(cfg *config.Config, out io.Writer) (*autosync.Coordinator, func(), error) {
	logger, err := newCLILogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	registry, err := project.Open(cfg.RegistryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening project registry: %w", err)
	}

	coord := autosync.NewCoordinator(newAdapter(cfg.Sync.Backend), registry,
		func() config.SyncConfig { return cfg.Sync },
		autosync.WithLogger(logger),
		autosync.WithNotifier(printNotifier{out: out}),
	)
	cleanup := func() {
		coord.Wait()
		_ = logger.Sync()
	}
	return coord, cleanup, nil
}

// newCLILogger logs human-readable lines to stderr, at warn unless
// --verbose.
func newCLILogger(lc config.LogConfig) (*logging.Logger, error) {
	lc.Format = "console"
	lc.OTEL = false
	if !verbose {
		lc.Level = "warn"
	}
	return newLogger(lc, true)
}

// printNotifier writes notices to a terminal.
type printNotifier struct {
	out io.Writer
}

func (p printNotifier) NotifyUpdates(_ context.Context, n autosync.UpdateNotice) {
	fmt.Fprintln(p.out, n.Message())
}

func (p printNotifier) NotifyConflict(_ context.Context, n autosync.ConflictNotice) {
	fmt.Fprintln(p.out, n.Message())
}
