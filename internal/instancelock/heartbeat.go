package instancelock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/logging"
)

// HeartbeatOption customizes a HeartbeatLock.
type HeartbeatOption func(*HeartbeatLock)

// WithClock overrides the time source used for staleness checks and refresh
// timestamps.
func WithClock(now func() time.Time) HeartbeatOption {
	return func(l *HeartbeatLock) {
		if now != nil {
			l.now = now
		}
	}
}

// WithPID overrides the process identifier written into the artifact.
func WithPID(pid int) HeartbeatOption {
	return func(l *HeartbeatLock) {
		l.pid = pid
	}
}

// WithLogger attaches a logger for reclaim and refresh diagnostics.
func WithLogger(logger *slog.Logger) HeartbeatOption {
	return func(l *HeartbeatLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// HeartbeatLock is a lock file kept alive by periodic rewrites. An artifact
// whose modification time is older than the timeout belongs to a dead holder.
type HeartbeatLock struct {
	path     string
	timeout  time.Duration
	interval time.Duration
	pid      int
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	held   bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeatLock returns an unlocked HeartbeatLock.
func NewHeartbeatLock(path string, timeout, interval time.Duration, opts ...HeartbeatOption) *HeartbeatLock {
	l := &HeartbeatLock{
		path:     path,
		timeout:  timeout,
		interval: interval,
		pid:      os.Getpid(),
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// artifactAge reports how long ago the artifact was last refreshed.
func (l *HeartbeatLock) artifactAge() (time.Duration, bool, error) {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("stat lock: %w", err)
	}
	return l.now().Sub(info.ModTime()), true, nil
}

// stale reports whether an artifact of the given age was abandoned. An
// artifact exactly timeout old still counts as held.
func (l *HeartbeatLock) stale(age time.Duration) bool {
	return age > l.timeout
}

// Acquire reclaims an abandoned artifact if needed, creates a fresh one holding
// the pid and starts the refresh loop.
func (l *HeartbeatLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	age, exists, err := l.artifactAge()
	switch {
	case err != nil:
		return err
	case exists:
		if !l.stale(age) {
			return ErrAlreadyRunning
		}
		if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", ErrReclaimFailed, err)
		}
		l.logger.Warn("stale lock reclaimed",
			logging.String(logging.FieldEventType, "lock_reclaimed"),
			logging.String(logging.FieldErrorHint, "a previous instance exited without releasing the lock"),
			logging.String(logging.FieldImpact, "none; this instance now holds the lock"),
			logging.String("path", l.path),
			logging.Duration("age", age),
		)
	}

	file, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("create lock: %w", err)
	}
	_, werr := file.WriteString(strconv.Itoa(l.pid))
	cerr := file.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(l.path)
		return fmt.Errorf("write lock: %w", err)
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	l.done = make(chan struct{})
	l.held = true
	go l.refreshLoop(refreshCtx, l.done)
	return nil
}

func (l *HeartbeatLock) refreshLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	if l.interval <= 0 {
		return
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.refresh(); err != nil {
				l.logger.Debug("lock refresh failed", logging.Error(err), logging.String("path", l.path))
			}
		}
	}
}

// refresh replaces the artifact with "<pid> <unix>" through a rename so a
// concurrent reader never observes a partial write.
func (l *HeartbeatLock) refresh() error {
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	content := fmt.Sprintf("%d %d", l.pid, l.now().Unix())
	_, werr := tmp.WriteString(content)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Release stops the refresh loop and removes the artifact when it still names
// this process.
func (l *HeartbeatLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}
	l.held = false
	l.cancel()
	<-l.done

	holder, err := ReadHolder(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if holder.PID != l.pid {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// Path returns the lock artifact location.
func (l *HeartbeatLock) Path() string { return l.path }

// Mode reports the lock strategy.
func (l *HeartbeatLock) Mode() string { return config.LockModeHeartbeat }

// Holder is the parsed content of a heartbeat artifact.
type Holder struct {
	PID       int
	Refreshed time.Time
}

// ReadHolder parses a heartbeat artifact. The timestamp is zero when the file
// still holds the initial "<pid>" form.
func ReadHolder(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return Holder{}, fmt.Errorf("lock file %s is empty", path)
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return Holder{}, fmt.Errorf("parse lock pid: %w", err)
	}
	holder := Holder{PID: pid}
	if len(fields) > 1 {
		ts, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Holder{}, fmt.Errorf("parse lock timestamp: %w", err)
		}
		holder.Refreshed = time.Unix(ts, 0)
	}
	return holder, nil
}
