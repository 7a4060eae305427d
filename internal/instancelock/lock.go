package instancelock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/logging"
)

var (
	// ErrAlreadyRunning indicates another live instance holds the lock.
	ErrAlreadyRunning = errors.New("another nfckeyboard instance is already running")
	// ErrReclaimFailed indicates an abandoned lock artifact could not be removed.
	ErrReclaimFailed = errors.New("failed to reclaim stale lock")
)

// Locker is a single-instance guard.
type Locker interface {
	// Acquire takes the lock or fails immediately.
	Acquire(ctx context.Context) error
	// Release gives the lock up. It is safe to call more than once.
	Release() error
	Path() string
	Mode() string
}

// New builds the locker selected by cfg.Lock.Mode.
func New(cfg *config.Config, logger *slog.Logger) (Locker, error) {
	if cfg == nil {
		return nil, errors.New("instancelock: config is required")
	}
	path := cfg.LockPath()
	switch cfg.Lock.Mode {
	case config.LockModeFlock, "":
		return NewFileLock(path), nil
	case config.LockModeHeartbeat:
		return NewHeartbeatLock(path, cfg.LockTimeout(), cfg.LockUpdateInterval(),
			WithLogger(logging.NewComponentLogger(logger, "instance-lock")),
		), nil
	default:
		return nil, fmt.Errorf("instancelock: unsupported mode %q", cfg.Lock.Mode)
	}
}
