package gitops

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const abortTimeout = 30 * time.Second

// CLIAdapter implements Adapter by shelling out to the git command.
//
// Credentials are never handled here; git resolves them through the host's
// credential helpers and ssh-agent. Interactive prompts are disabled so a
// missing credential fails fast instead of hanging a sync cycle.
type CLIAdapter struct {
	binary   string
	lookPath func(string) (string, error)
}

// NewCLIAdapter creates an adapter that runs the git binary found on PATH.
func NewCLIAdapter() *CLIAdapter {
	return &CLIAdapter{
		binary:   "git",
		lookPath: exec.LookPath,
	}
}

// Fetch runs git fetch for the repository at path.
func (c *CLIAdapter) Fetch(ctx context.Context, path string) error {
	if _, err := c.run(ctx, path, "fetch", "--quiet"); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// CommitsBehind counts commits in HEAD..@{upstream}.
func (c *CLIAdapter) CommitsBehind(ctx context.Context, path string) (int, error) {
	out, err := c.run(ctx, path, "rev-list", "--count", "HEAD..@{upstream}")
	if err != nil {
		return 0, fmt.Errorf("git rev-list failed: %w", err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("parsing rev-list output %q: %w", out, err)
	}
	return count, nil
}

// Pull merges the upstream tracking branch and reports the changed files.
//
// A failed merge is aborted so the folder is left as it was before the pull;
// the conflict itself is never resolved here.
func (c *CLIAdapter) Pull(ctx context.Context, path string) (*PullResult, error) {
	before, err := c.revParseHead(ctx, path)
	if err != nil {
		return nil, err
	}

	if _, err := c.run(ctx, path, "pull", "--no-rebase", "--no-edit", "--quiet"); err != nil {
		if errors.Is(err, ErrMergeConflict) || ctx.Err() != nil {
			// Best-effort: there may be no merge in progress to abort. A
			// cancelled pull is cleaned up on a context that still runs.
			abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
			_, _ = c.run(abortCtx, path, "merge", "--abort")
			cancel()
		}
		return nil, fmt.Errorf("git pull failed: %w", err)
	}

	after, err := c.revParseHead(ctx, path)
	if err != nil {
		return nil, err
	}

	if before == after {
		return &PullResult{}, nil
	}

	out, err := c.run(ctx, path, "diff", "--name-only", before, after)
	if err != nil {
		return nil, fmt.Errorf("git diff failed: %w", err)
	}

	files := splitLines(out)
	return &PullResult{
		ChangedFileCount: len(files),
		ChangedFiles:     files,
	}, nil
}

func (c *CLIAdapter) revParseHead(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// run executes git with -C path and returns stdout. Failures are classified
// into the package's sentinel errors using stderr.
func (c *CLIAdapter) run(ctx context.Context, path string, args ...string) (string, error) {
	if err := requireRepository(path); err != nil {
		return "", err
	}

	bin, err := c.lookPath(c.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGitUnavailable, err)
	}

	cmd := exec.CommandContext(ctx, bin, append([]string{"-C", path}, args...)...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyOutput(stdout.String()+stderr.String(), err)
	}
	return stdout.String(), nil
}

var (
	conflictMarkers = []string{
		"conflict",
		"automatic merge failed",
		"not possible to fast-forward",
		"would be overwritten by merge",
		"you have unstaged changes",
		"uncommitted changes",
		"you have not concluded your merge",
	}
	networkMarkers = []string{
		"could not resolve host",
		"unable to access",
		"could not read from remote",
		"connection refused",
		"connection timed out",
		"operation timed out",
		"network is unreachable",
		"failed to connect",
	}
	upstreamMarkers = []string{
		"no upstream configured",
		"no tracking information",
		"does not point to a branch",
		"no such remote",
		"does not appear to be a git repository",
	}
)

// classifyOutput maps git's combined output to a sentinel error.
func classifyOutput(output string, cause error) error {
	lower := strings.ToLower(output)
	detail := strings.TrimSpace(output)

	switch {
	case strings.Contains(lower, "not a git repository"):
		return fmt.Errorf("%w: %s", ErrNotARepository, detail)
	case containsAny(lower, upstreamMarkers):
		return fmt.Errorf("%w: %s", ErrNoUpstream, detail)
	case containsAny(lower, conflictMarkers):
		return fmt.Errorf("%w: %s", ErrMergeConflict, detail)
	case containsAny(lower, networkMarkers):
		return fmt.Errorf("%w: %s", ErrNetwork, detail)
	}
	return fmt.Errorf("%w: %s", cause, detail)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
