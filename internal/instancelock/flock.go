package instancelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"nfckeyboard/internal/config"
)

// FileLock is an OS-level exclusive advisory lock.
type FileLock struct {
	path string

	mu   sync.Mutex
	lock *flock.Flock
	held bool
}

// NewFileLock returns an unlocked FileLock for path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path, lock: flock.New(path)}
}

// Acquire requests a non-blocking exclusive lock.
func (l *FileLock) Acquire(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}
	l.held = true
	return nil
}

// Release unlocks and closes the descriptor. The file itself is left in place;
// removing it would let a racing process lock a different inode.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	if err := l.lock.Unlock(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *FileLock) Path() string { return l.path }

// Mode reports the lock strategy.
func (l *FileLock) Mode() string { return config.LockModeFlock }
