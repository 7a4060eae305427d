package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/deps"
	"nfckeyboard/internal/instancelock"
	"nfckeyboard/internal/pcsc"
)

// UinputDevice is the kernel virtual input device used for paste keystrokes.
const UinputDevice = "/dev/uinput"

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckUinput verifies that the virtual keyboard device can be opened for writing.
func CheckUinput(path string) Result {
	const name = "Virtual keyboard"
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s missing (load the uinput module)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s not writable (add the user to the input group)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", path)}
}

// CheckReader verifies that pcscd answers and exposes at least one reader.
func CheckReader(establish ContextFactory) Result {
	const name = "Card reader"
	probe := ProbeReaders(establish)
	if probe.Err != nil {
		return Result{Name: name, Detail: probe.Detail()}
	}
	return Result{Name: name, Passed: true, Detail: probe.Detail()}
}

// CheckLock reports whether another instance holds the instance lock. A held
// lock is not a failure; it only means `run` would be refused.
func CheckLock(ctx context.Context, cfg *config.Config) Result {
	const name = "Instance lock"
	state, err := instancelock.Inspect(ctx, cfg)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.LockPath(), err)}
	}
	switch {
	case state.Held && state.PID > 0:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("held by pid %d (%s)", state.PID, state.Mode)}
	case state.Held:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("held by a running instance (%s)", state.Mode)}
	case state.Stale:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("stale artifact, will be reclaimed (age %s)", state.Age.Round(time.Second))}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("free (%s)", state.Mode)}
	}
}

// CheckSystemDeps evaluates the external programs the configured output path
// needs. Both the daemon and the CLI use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.Check(cfg)
}

// ReaderProbe is a snapshot of the readers pcscd currently exposes.
type ReaderProbe struct {
	Readers []string
	Err     error
}

// Selected returns the reader the watcher would use.
func (p ReaderProbe) Selected() string {
	if len(p.Readers) == 0 {
		return ""
	}
	return p.Readers[0]
}

// Detail renders a display-friendly summary for status output.
func (p ReaderProbe) Detail() string {
	switch {
	case errors.Is(p.Err, pcsc.ErrNoReader):
		return "No reader connected"
	case errors.Is(p.Err, pcsc.ErrContextUnavailable):
		return "PC/SC service unavailable (is pcscd running?)"
	case p.Err != nil:
		return p.Err.Error()
	case len(p.Readers) == 1:
		return p.Selected()
	default:
		return fmt.Sprintf("%s (+%d more)", p.Selected(), len(p.Readers)-1)
	}
}

// ProbeReaders opens a short-lived PC/SC context and lists its readers.
func ProbeReaders(establish ContextFactory) ReaderProbe {
	if establish == nil {
		establish = pcsc.Establish
	}
	pctx, err := establish()
	if err != nil {
		if !errors.Is(err, pcsc.ErrContextUnavailable) {
			err = fmt.Errorf("%w: %w", pcsc.ErrContextUnavailable, err)
		}
		return ReaderProbe{Err: err}
	}
	defer func() { _ = pctx.Release() }()

	readers, err := pctx.ListReaders()
	if err != nil {
		return ReaderProbe{Err: err}
	}
	var nonEmpty []string
	for _, r := range readers {
		if r != "" {
			nonEmpty = append(nonEmpty, r)
		}
	}
	if len(nonEmpty) == 0 {
		return ReaderProbe{Err: pcsc.ErrNoReader}
	}
	return ReaderProbe{Readers: nonEmpty}
}
