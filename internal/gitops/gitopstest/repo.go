// Package gitopstest builds throwaway git repositories for tests.
package gitopstest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Signature is the author used for every fixture commit.
func Signature() *object.Signature {
	return &object.Signature{
		Name:  "Test Author",
		Email: "test@example.com",
		When:  time.Now(),
	}
}

// Pair is an upstream repository and a clone tracking it.
type Pair struct {
	Upstream string
	Local    string
}

// NewPair creates an upstream repository with one commit and clones it.
func NewPair(t *testing.T) Pair {
	t.Helper()

	root := t.TempDir()
	upstream := filepath.Join(root, "upstream")
	local := filepath.Join(root, "local")

	if _, err := git.PlainInit(upstream, false); err != nil {
		t.Fatalf("Failed to init upstream: %v", err)
	}
	Commit(t, upstream, map[string]string{"README.md": "# fixture\n"}, "Initial commit")

	if _, err := git.PlainClone(local, false, &git.CloneOptions{URL: upstream}); err != nil {
		t.Fatalf("Failed to clone upstream: %v", err)
	}

	return Pair{Upstream: upstream, Local: local}
}

// Commit writes files into repoDir and commits them.
func Commit(t *testing.T, repoDir string, files map[string]string, msg string) {
	t.Helper()

	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", repoDir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}

	for name, content := range files {
		path := filepath.Join(repoDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("Failed to add %s: %v", name, err)
		}
	}

	if _, err := wt.Commit(msg, &git.CommitOptions{Author: Signature()}); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

// AdvanceUpstream adds n commits to the upstream repository, each touching
// its own file.
func (p Pair) AdvanceUpstream(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		name := filepath.Join("notes", fmt.Sprintf("update-%d-%d.md", time.Now().UnixNano(), i))
		Commit(t, p.Upstream, map[string]string{name: "update\n"}, "Upstream update")
	}
}

// PlainDir returns a directory with no .git marker.
func PlainDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("plain\n"), 0644); err != nil {
		t.Fatalf("Failed to write notes: %v", err)
	}
	return dir
}
