package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// RunLock is an advisory file lock that keeps a single writer per database.
type RunLock struct {
	path string
	lock *flock.Flock
}

// NewRunLock creates a [RunLock] backed by the file at path. The file is created on first acquire.
func NewRunLock(path string) *RunLock {
	if path == "" {
		path = filepath.Join(os.TempDir(), "anisync.lock")
	}
	return &RunLock{path: path, lock: flock.New(path)}
}

// Path returns the lock file location.
func (l *RunLock) Path() string { return l.path }

// Acquire takes the lock without blocking. It returns [ErrSyncInProgress] when another process holds it.
func (l *RunLock) Acquire() error {
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock held at %s)", ErrSyncInProgress, l.path)
	}
	return nil
}

// Release unlocks the file. Releasing an unheld lock is a no-op.
func (l *RunLock) Release() error {
	if !l.lock.Locked() {
		return nil
	}
	return l.lock.Unlock()
}
