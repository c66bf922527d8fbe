package gitops

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextsync/internal/gitops/gitopstest"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	t.Setenv("GIT_AUTHOR_NAME", "Test Author")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test Author")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")
}

func TestClassifyOutput(t *testing.T) {
	cause := errors.New("exit status 1")

	tests := []struct {
		name   string
		output string
		want   error
	}{
		{"not a repo", "fatal: not a git repository (or any of the parent directories): .git", ErrNotARepository},
		{"dns", "fatal: unable to access 'https://example.invalid/x.git/': Could not resolve host: example.invalid", ErrNetwork},
		{"ssh", "ssh: connect to host example.com port 22: Connection refused\nfatal: Could not read from remote repository.", ErrNetwork},
		{"conflict", "CONFLICT (content): Merge conflict in notes.md\nAutomatic merge failed; fix conflicts and then commit the result.", ErrMergeConflict},
		{"ff only", "fatal: Not possible to fast-forward, aborting.", ErrMergeConflict},
		{"dirty", "error: Your local changes to the following files would be overwritten by merge:", ErrMergeConflict},
		{"no upstream", "fatal: no upstream configured for branch 'main'", ErrNoUpstream},
		{"detached", "fatal: HEAD does not point to a branch", ErrNoUpstream},
		{"missing remote", "fatal: 'origin' does not appear to be a git repository\nfatal: Could not read from remote repository.", ErrNoUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyOutput(tt.output, cause)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("unknown keeps cause", func(t *testing.T) {
		err := classifyOutput("fatal: something odd", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "something odd")
	})
}

func TestCLIAdapter_GitUnavailable(t *testing.T) {
	pair := gitopstest.NewPair(t)
	adapter := &CLIAdapter{
		binary: "git",
		lookPath: func(string) (string, error) {
			return "", exec.ErrNotFound
		},
	}

	err := adapter.Fetch(context.Background(), pair.Local)
	assert.ErrorIs(t, err, ErrGitUnavailable)
}

func TestCLIAdapter_NotARepository(t *testing.T) {
	adapter := NewCLIAdapter()
	dir := gitopstest.PlainDir(t)

	_, err := adapter.CommitsBehind(context.Background(), dir)
	assert.ErrorIs(t, err, ErrNotARepository)
}

func TestCLIAdapter_BehindThenPull(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	pair := gitopstest.NewPair(t)
	pair.AdvanceUpstream(t, 2)

	adapter := NewCLIAdapter()
	require.NoError(t, adapter.Fetch(ctx, pair.Local))

	behind, err := adapter.CommitsBehind(ctx, pair.Local)
	require.NoError(t, err)
	assert.Equal(t, 2, behind)

	res, err := adapter.Pull(ctx, pair.Local)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChangedFileCount)

	res, err = adapter.Pull(ctx, pair.Local)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ChangedFileCount)
}

func TestCLIAdapter_MergeConflict(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	pair := gitopstest.NewPair(t)
	gitopstest.Commit(t, pair.Upstream, map[string]string{"README.md": "upstream\n"}, "Upstream edit")
	gitopstest.Commit(t, pair.Local, map[string]string{"README.md": "local\n"}, "Local edit")

	adapter := NewCLIAdapter()
	_, err := adapter.Pull(ctx, pair.Local)
	assert.ErrorIs(t, err, ErrMergeConflict)

	// The aborted merge leaves the folder usable for the next cycle.
	require.NoError(t, adapter.Fetch(ctx, pair.Local))
	behind, err := adapter.CommitsBehind(ctx, pair.Local)
	require.NoError(t, err)
	assert.Equal(t, 1, behind)
}
