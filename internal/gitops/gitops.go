// Package gitops runs the remote-aware git operations contextsync needs
// against a single project folder.
//
// Three operations are exposed through the Adapter interface:
//
//   - Fetch: update remote-tracking refs, never touching the working tree
//   - CommitsBehind: count commits present upstream but absent locally
//   - Pull: fetch and merge the tracking branch into the working tree
//
// Two backends implement Adapter. CLIAdapter shells out to the git binary
// found on PATH; GoGitAdapter uses go-git and therefore never reports
// ErrGitUnavailable, but only merges fast-forwards.
//
// Failures are reported as wrapped sentinel errors so callers can branch with
// errors.Is:
//
//	_, err := adapter.Pull(ctx, path)
//	if errors.Is(err, gitops.ErrMergeConflict) {
//	    // surface to the user, the merge did not complete
//	}
//
// Locker wraps any Adapter and serializes operations per folder, both within
// the process and across processes (via a lock file in the git directory).
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrGitUnavailable indicates the git tool is not on the execution path.
	ErrGitUnavailable = errors.New("git executable not found")

	// ErrNotARepository indicates the folder has no .git marker.
	ErrNotARepository = errors.New("not a git repository")

	// ErrNetwork indicates the remote could not be reached.
	ErrNetwork = errors.New("remote unreachable")

	// ErrMergeConflict indicates a pull could not be merged automatically.
	ErrMergeConflict = errors.New("merge could not complete automatically")

	// ErrNoUpstream indicates the current branch tracks no remote branch
	// (detached HEAD, no remote, or no upstream configured).
	ErrNoUpstream = errors.New("no upstream tracking branch")
)

// Adapter runs remote-aware git operations against one repository path.
//
//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks -source=gitops.go Adapter
type Adapter interface {
	// Fetch updates remote-tracking refs for the repository at path.
	Fetch(ctx context.Context, path string) error

	// CommitsBehind returns the number of commits reachable from the
	// upstream tracking ref that are not reachable from HEAD. Call Fetch
	// first for an up-to-date answer.
	CommitsBehind(ctx context.Context, path string) (int, error)

	// Pull fetches and merges the upstream tracking branch. Already being
	// up to date is a successful result with ChangedFileCount == 0.
	Pull(ctx context.Context, path string) (*PullResult, error)
}

// PullResult describes the working tree changes a pull produced.
type PullResult struct {
	// ChangedFileCount is the number of files that differ between the
	// pre-pull and post-pull HEAD.
	ChangedFileCount int `json:"changed_file_count"`

	// ChangedFiles lists the repository-relative paths that changed.
	ChangedFiles []string `json:"changed_files,omitempty"`
}

// IsGitBacked reports whether path contains a .git marker (directory or
// worktree file). It is evaluated fresh on every call.
func IsGitBacked(path string) bool {
	_, err := DetectGitDir(path)
	return err == nil
}

// DetectGitDir returns the git directory for a project path.
//
// For a main repository this is <path>/.git. For a worktree, .git is a file
// of the form "gitdir: <dir>" and the referenced directory is returned,
// resolved against path when relative.
func DetectGitDir(path string) (string, error) {
	gitPath := filepath.Join(path, ".git")

	info, err := os.Stat(gitPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return "", fmt.Errorf("stat .git: %w", err)
	}

	if info.IsDir() {
		return gitPath, nil
	}

	content, err := os.ReadFile(gitPath)
	if err != nil {
		return "", fmt.Errorf("reading .git file: %w", err)
	}

	gitDir := parseGitDir(string(content))
	if gitDir == "" {
		return "", fmt.Errorf("%w: invalid .git file in %s", ErrNotARepository, path)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(path, gitDir)
	}

	return filepath.Clean(gitDir), nil
}

// parseGitDir extracts the path from "gitdir: <path>" content.
func parseGitDir(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "gitdir:") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(content, "gitdir:"))
}

// requireRepository returns ErrNotARepository when path has no .git marker.
func requireRepository(path string) error {
	if !IsGitBacked(path) {
		return fmt.Errorf("%w: %s", ErrNotARepository, path)
	}
	return nil
}
