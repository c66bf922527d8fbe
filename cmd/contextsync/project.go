package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextsync/internal/logging"
	"github.com/fyrsmithlabs/contextsync/internal/project"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage registered context projects",
		Long: `Manage the context projects auto-sync checks.

Changes are written to the registry file and picked up by the daemon at
the start of its next cycle.`,
	}
	cmd.AddCommand(
		newProjectAddCmd(),
		newProjectListCmd(),
		newProjectEnableCmd(true),
		newProjectEnableCmd(false),
		newProjectRemoveCmd(),
	)
	return cmd
}

// openRegistry opens the registry named by the configuration.
func openRegistry() (project.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	registry, err := project.Open(cfg.RegistryPath())
	if err != nil {
		return nil, fmt.Errorf("opening project registry: %w", err)
	}
	return registry, nil
}

func newProjectAddCmd() *cobra.Command {
	var disabled bool

	cmd := &cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register a project folder",
		Long: `Register a project folder.

Examples:
  # Register a cloned knowledge base
  contextsync project add handbook ~/context/handbook

  # Register without including it in auto-sync yet
  contextsync project add drafts ./drafts --disabled`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			p, err := registry.Create(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("adding project: %w", err)
			}
			if disabled {
				if p, err = registry.SetEnabled(ctx, p.Name, false); err != nil {
					return fmt.Errorf("disabling project: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added %s (%s)\n", p.Name, p.Path)
			if p.RemoteURL == "" {
				fmt.Fprintln(out, "Warning: folder is not a git repository with an origin remote; auto-sync will skip it.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&disabled, "disabled", false, "exclude the project from auto-sync")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := openRegistry()
			if err != nil {
				return err
			}
			projects, err := registry.List(cmd.Context())
			if err != nil {
				return err
			}
			printProjects(cmd.OutOrStdout(), projects, time.Now())
			return nil
		},
	}
}

func printProjects(out io.Writer, projects []*project.Project, now time.Time) {
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects registered. Add one with `contextsync project add <name> <path>`.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSYNC\tLAST SYNC\tREMOTE\tPATH")
	for _, p := range projects {
		sync := "enabled"
		if !p.Enabled {
			sync = "disabled"
		}
		last := "never"
		if p.LastSyncedAt != nil {
			last = now.Sub(*p.LastSyncedAt).Truncate(time.Minute).String() + " ago"
		}
		remote := logging.SanitizeURL(p.RemoteURL)
		if remote == "" {
			remote = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, sync, last, remote, p.Path)
	}
	_ = w.Flush()
}

func newProjectEnableCmd(enable bool) *cobra.Command {
	use, short, verb := "enable <name>", "Include a project in auto-sync", "Enabled"
	if !enable {
		use, short, verb = "disable <name>", "Exclude a project from auto-sync", "Disabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry()
			if err != nil {
				return err
			}
			p, err := registry.SetEnabled(cmd.Context(), args[0], enable)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s auto-sync for %s\n", verb, p.Name)
			return nil
		},
	}
}

func newProjectRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Unregister a project (the folder is left untouched)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := openRegistry()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			p, err := registry.GetByName(ctx, args[0])
			if err != nil {
				return err
			}
			if err := registry.Delete(ctx, p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", p.Name)
			return nil
		},
	}
}
