package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	terrors "github.com/Aman-CERP/trenton/internal/errors"
)

// DirLock is an exclusive cross-process lock on a data directory, so only
// one process owns a store file at a time.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for dir. The lock file is <dir>/.trenton.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".trenton.lock")
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock acquires the lock without blocking. A lock held by another
// process returns ErrCodeDataDirLock.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return terrors.New(terrors.ErrCodeDataDirLock, "failed to acquire data directory lock", err)
	}
	if !acquired {
		return terrors.New(terrors.ErrCodeDataDirLock,
			"data directory is in use by another trenton process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Stop the other process or use a different store path")
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked DirLock is a no-op.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
