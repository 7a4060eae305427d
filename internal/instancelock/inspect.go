package instancelock

import (
	"context"
	"errors"
	"time"

	"nfckeyboard/internal/config"
)

// Inspection describes the lock artifact as seen from another process.
type Inspection struct {
	Path string
	Mode string
	Held bool
	// PID and Age are only known for heartbeat artifacts.
	PID   int
	Age   time.Duration
	Stale bool
}

// Inspect reports whether a running instance holds the configured lock
// without disturbing it. A free flock lock is taken and released again.
// Heartbeat artifacts are judged by the same staleness rule Acquire applies;
// opts are passed to that lock, so WithClock controls the time source.
func Inspect(ctx context.Context, cfg *config.Config, opts ...HeartbeatOption) (Inspection, error) {
	if cfg == nil {
		return Inspection{}, errors.New("instance lock requires config")
	}
	result := Inspection{Path: cfg.LockPath(), Mode: cfg.Lock.Mode}

	if cfg.Lock.Mode == config.LockModeHeartbeat {
		lock := NewHeartbeatLock(result.Path, cfg.LockTimeout(), cfg.LockUpdateInterval(), opts...)
		age, exists, err := lock.artifactAge()
		if err != nil || !exists {
			return result, err
		}
		result.Age = age
		result.Stale = lock.stale(age)
		result.Held = !result.Stale
		if holder, err := ReadHolder(result.Path); err == nil {
			result.PID = holder.PID
		}
		return result, nil
	}

	probe := NewFileLock(result.Path)
	switch err := probe.Acquire(ctx); {
	case errors.Is(err, ErrAlreadyRunning):
		result.Held = true
	case err != nil:
		return result, err
	default:
		_ = probe.Release()
	}
	return result, nil
}
