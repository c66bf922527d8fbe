package gitops

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// GoGitAdapter implements Adapter with go-git. It does not need a git
// binary, and only fast-forward merges are supported; anything else is
// reported as ErrMergeConflict.
type GoGitAdapter struct {
	defaultRemote string
}

// NewGoGitAdapter creates a go-git backed adapter.
func NewGoGitAdapter() *GoGitAdapter {
	return &GoGitAdapter{defaultRemote: git.DefaultRemoteName}
}

// tracking identifies the upstream of the checked-out branch.
type tracking struct {
	remote string
	merge  plumbing.ReferenceName
}

func (t tracking) remoteRef() plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(t.remote, t.merge.Short())
}

// Fetch updates remote-tracking refs for the upstream remote.
func (g *GoGitAdapter) Fetch(ctx context.Context, path string) error {
	repo, err := g.open(path)
	if err != nil {
		return err
	}

	up, err := g.upstream(repo)
	if err != nil {
		return err
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: up.remote})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classifyGoGitError("fetch", err)
	}
	return nil
}

// CommitsBehind counts commits reachable from the remote-tracking ref that
// HEAD does not contain. Local-only commits do not reduce the count.
func (g *GoGitAdapter) CommitsBehind(ctx context.Context, path string) (int, error) {
	repo, err := g.open(path)
	if err != nil {
		return 0, err
	}

	up, err := g.upstream(repo)
	if err != nil {
		return 0, err
	}

	head, err := repo.Head()
	if err != nil {
		return 0, fmt.Errorf("resolving HEAD: %w", err)
	}

	remote, err := repo.Reference(up.remoteRef(), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return 0, fmt.Errorf("%w: %s not fetched", ErrNoUpstream, up.remoteRef().Short())
		}
		return 0, fmt.Errorf("resolving %s: %w", up.remoteRef(), err)
	}

	if remote.Hash() == head.Hash() {
		return 0, nil
	}

	local, err := reachable(ctx, repo, head.Hash())
	if err != nil {
		return 0, err
	}

	iter, err := repo.Log(&git.LogOptions{From: remote.Hash()})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", up.remoteRef().Short(), err)
	}
	defer iter.Close()

	behind := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := local[c.Hash]; !ok {
			behind++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", up.remoteRef().Short(), err)
	}

	return behind, nil
}

// Pull fast-forwards the checked-out branch to its upstream.
func (g *GoGitAdapter) Pull(ctx context.Context, path string) (*PullResult, error) {
	repo, err := g.open(path)
	if err != nil {
		return nil, err
	}

	up, err := g.upstream(repo)
	if err != nil {
		return nil, err
	}

	before, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    up.remote,
		ReferenceName: up.merge,
		SingleBranch:  true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &PullResult{}, nil
	}
	if err != nil {
		return nil, classifyGoGitError("pull", err)
	}

	after, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	files, err := changedFiles(repo, before.Hash(), after.Hash())
	if err != nil {
		return nil, err
	}

	return &PullResult{
		ChangedFileCount: len(files),
		ChangedFiles:     files,
	}, nil
}

func (g *GoGitAdapter) open(path string) (*git.Repository, error) {
	if err := requireRepository(path); err != nil {
		return nil, err
	}

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, path)
		}
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	return repo, nil
}

// upstream resolves the remote and merge ref for the checked-out branch,
// falling back to <default remote>/<branch> when no branch config exists.
func (g *GoGitAdapter) upstream(repo *git.Repository) (tracking, error) {
	head, err := repo.Head()
	if err != nil {
		return tracking{}, fmt.Errorf("%w: %v", ErrNoUpstream, err)
	}
	if !head.Name().IsBranch() {
		return tracking{}, fmt.Errorf("%w: detached HEAD", ErrNoUpstream)
	}

	up := tracking{remote: g.defaultRemote, merge: head.Name()}

	cfg, err := repo.Config()
	if err != nil {
		return tracking{}, fmt.Errorf("reading repository config: %w", err)
	}
	if b, ok := cfg.Branches[head.Name().Short()]; ok {
		if b.Remote != "" {
			up.remote = b.Remote
		}
		if b.Merge != "" {
			up.merge = b.Merge
		}
	}

	if _, ok := cfg.Remotes[up.remote]; !ok {
		return tracking{}, fmt.Errorf("%w: remote %q not configured", ErrNoUpstream, up.remote)
	}
	return up, nil
}

// reachable returns the set of commits reachable from hash.
func reachable(ctx context.Context, repo *git.Repository, hash plumbing.Hash) (map[plumbing.Hash]struct{}, error) {
	iter, err := repo.Log(&git.LogOptions{From: hash})
	if err != nil {
		return nil, fmt.Errorf("walking HEAD: %w", err)
	}
	defer iter.Close()

	seen := make(map[plumbing.Hash]struct{})
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[c.Hash] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking HEAD: %w", err)
	}
	return seen, nil
}

// changedFiles lists paths that differ between two commits' trees.
func changedFiles(repo *git.Repository, from, to plumbing.Hash) ([]string, error) {
	if from == to {
		return nil, nil
	}

	fromTree, err := commitTree(repo, from)
	if err != nil {
		return nil, err
	}
	toTree, err := commitTree(repo, to)
	if err != nil {
		return nil, err
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return nil, fmt.Errorf("diffing trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func commitTree(repo *git.Repository, hash plumbing.Hash) (*object.Tree, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("loading commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading tree for %s: %w", hash, err)
	}
	return tree, nil
}

// classifyGoGitError maps go-git failures to the package sentinels.
func classifyGoGitError(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		errors.Is(err, git.ErrUnstagedChanges),
		errors.Is(err, git.ErrWorktreeNotClean):
		return fmt.Errorf("%w: %s: %v", ErrMergeConflict, op, err)
	case errors.Is(err, git.ErrRemoteNotFound):
		return fmt.Errorf("%w: %s: %v", ErrNoUpstream, op, err)
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository):
		return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
	}
	// Remaining fetch failures are transport level (dial, TLS, protocol).
	return fmt.Errorf("%w: %s: %v", ErrNetwork, op, err)
}
