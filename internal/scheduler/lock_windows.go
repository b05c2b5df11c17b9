//go:build windows

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileLock guards against two scheduler processes ticking over the same
// data directory. On Windows the lock file itself is the lock: creation
// with O_EXCL fails while another process holds it.
type FileLock struct {
	path   string
	file   *os.File
	locked bool
}

// NewFileLock creates a lock for the given path. The lock is not held
// until TryLock succeeds.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// TryLock attempts to take the lock without blocking. It returns false
// when another process already holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("open lock file: %w", err)
	}
	l.file = f
	l.locked = true
	return true, nil
}

// Unlock releases the lock and removes the lock file.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.file.Close()
	l.file = nil
	l.locked = false
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
