package backfill

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// RunLock is a cross-process lock held for the duration of a backfill pass
// over one collection.
type RunLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRunLock creates a lock for database.collection under dir.
// The lock file is <dir>/<database>.<collection>.lock.
func NewRunLock(dir, database, collection string) *RunLock {
	name := sanitizeLockName(database) + "." + sanitizeLockName(collection) + ".lock"
	lockPath := filepath.Join(dir, name)
	return &RunLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns false if another process holds it.
func (l *RunLock) TryLock() (bool, error) {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call more than once.
func (l *RunLock) Unlock() error {
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
func (l *RunLock) Path() string {
	return l.path
}

// IsLocked returns true if this process holds the lock.
func (l *RunLock) IsLocked() bool {
	return l.locked
}

// AcquireLock takes the run lock for database.collection. It returns
// (nil, nil) when another pass already holds it.
func AcquireLock(dir, database, collection string) (*RunLock, error) {
	l := NewRunLock(dir, database, collection)
	acquired, err := l.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, nil
	}
	return l, nil
}

func sanitizeLockName(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
