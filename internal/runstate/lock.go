package runstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned by Lock.TryLock when another holder owns the lock.
var ErrLocked = errors.New("another run holds the lock")

// Lock is an exclusive advisory lock file that keeps two invocations from
// running the check-and-commit sequence against the same data directory.
type Lock struct {
	f    *flock.Flock
	path string
}

// NewLock returns a lock backed by <dir>/.lock.
func NewLock(dir string) *Lock {
	path := filepath.Join(dir, ".lock")
	return &Lock{f: flock.New(path), path: path}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// TryLock acquires the lock without blocking. It returns an error wrapping
// ErrLocked when the lock is already held.
func (l *Lock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating directory for lock file %s: %w", l.path, err)
	}
	locked, err := l.f.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring lock %s: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrLocked, l.path)
	}
	return nil
}

// Unlock releases the lock. The lock file itself is left in place.
func (l *Lock) Unlock() error {
	if err := l.f.Unlock(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	return nil
}
