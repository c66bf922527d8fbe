package gitops

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockFileName is created inside the repository's git directory.
const lockFileName = "contextsync.lock"

// Locker serializes git operations per folder.
//
// Within the process, operations on the same folder wait on a per-folder
// semaphore. Across processes (daemon and CLI invoked side by side) a file
// lock in the git directory provides the same guarantee. Operations on
// different folders never block each other.
type Locker struct {
	next       Adapter
	retryDelay time.Duration

	mu      sync.Mutex
	folders map[string]*folderLock
}

type folderLock struct {
	sem  chan struct{}
	refs int
}

// NewLocker wraps next with per-folder locking.
func NewLocker(next Adapter) *Locker {
	return &Locker{
		next:       next,
		retryDelay: 50 * time.Millisecond,
		folders:    make(map[string]*folderLock),
	}
}

// Fetch runs next.Fetch while holding the folder lock.
func (l *Locker) Fetch(ctx context.Context, path string) error {
	return l.with(ctx, path, func() error {
		return l.next.Fetch(ctx, path)
	})
}

// CommitsBehind runs next.CommitsBehind while holding the folder lock.
func (l *Locker) CommitsBehind(ctx context.Context, path string) (int, error) {
	var n int
	err := l.with(ctx, path, func() error {
		var err error
		n, err = l.next.CommitsBehind(ctx, path)
		return err
	})
	return n, err
}

// Pull runs next.Pull while holding the folder lock.
func (l *Locker) Pull(ctx context.Context, path string) (*PullResult, error) {
	var res *PullResult
	err := l.with(ctx, path, func() error {
		var err error
		res, err = l.next.Pull(ctx, path)
		return err
	})
	return res, err
}

func (l *Locker) with(ctx context.Context, path string, fn func() error) error {
	gitDir, err := DetectGitDir(path)
	if err != nil {
		return err
	}

	key := filepath.Clean(path)
	fl := l.acquire(key)
	defer l.release(key)

	select {
	case fl.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-fl.sem }()

	fileLock := flock.New(filepath.Join(gitDir, lockFileName))
	locked, err := fileLock.TryLockContext(ctx, l.retryDelay)
	if err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("locking %s: lock not acquired", path)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

// acquire returns the folder's lock entry, creating it on first use.
func (l *Locker) acquire(key string) *folderLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl, ok := l.folders[key]
	if !ok {
		fl = &folderLock{sem: make(chan struct{}, 1)}
		l.folders[key] = fl
	}
	fl.refs++
	return fl
}

// release drops the entry once no caller references it.
func (l *Locker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fl, ok := l.folders[key]; ok {
		fl.refs--
		if fl.refs == 0 {
			delete(l.folders, key)
		}
	}
}
