package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/ipc"
	"nfckeyboard/internal/preflight"
)

// ErrDaemonNotRunning indicates no instance answers on the socket.
var ErrDaemonNotRunning = errors.New("nfckeyboard is not running")

// Dial connects to a running instance, mapping a missing or refused socket to
// ErrDaemonNotRunning.
func Dial(socketPath string) (*ipc.Client, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	return client, nil
}

// WaitForShutdown waits for the IPC socket to disappear or report not-running.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			lastErr = err
			time.Sleep(100 * time.Millisecond)
			continue
		}
		status, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && !status.Running {
			return nil
		}
		if statusErr != nil {
			lastErr = statusErr
		} else {
			lastErr = fmt.Errorf("still running")
		}
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("nfckeyboard did not stop: %w", lastErr)
}

// ProcessInfo returns whether the socket answers and the instance PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.PID, nil
}

// ForceKillProcess sends SIGKILL to the instance and removes its pid file.
// The heartbeat artifact is removed too; an flock lock dies with the process.
func ForceKillProcess(cfg *config.Config, fallbackPID int) (int, error) {
	pidPath := cfg.PIDPath()
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine nfckeyboard pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill process %d: %w", pid, err)
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if cfg.Lock.Mode == config.LockModeHeartbeat {
		_ = os.Remove(cfg.LockPath())
	}
	_ = os.Remove(cfg.SocketPath())
	return pid, nil
}

// StopResult captures the stop outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndWait requests a stop and force-kills the process if it is still
// alive after gracePeriod.
func StopAndWait(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := Dial(socketPath)
	if err != nil {
		return StopResult{}, err
	}
	pid := 0
	if status, statusErr := client.Status(); statusErr == nil {
		pid = status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	result := StopResult{PID: pid}
	switch {
	case err == nil:
		result.StopAcknowledged = resp.Stopping
	case isConnectionDropped(err):
		// The instance tore the socket down before replying.
		result.StopAcknowledged = true
	default:
		return StopResult{}, err
	}

	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}
	if livePID == 0 {
		livePID = pid
	}
	killed, killErr := ForceKillProcess(cfg, livePID)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop nfckeyboard: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killed
	return result, nil
}

// StatusSnapshot is everything `nfckeyboard status` renders.
type StatusSnapshot struct {
	Reachable         bool
	Status            ipc.StatusResponse
	Readers           preflight.ReaderProbe
	SystemChecks      []StatusLine
	DependencySummary DependencySummary
}

// BuildStatusSnapshot collects live status over IPC and falls back to local
// probes when no instance answers.
func BuildStatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config, establish preflight.ContextFactory) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &StatusSnapshot{}

	if client, err := ipc.Dial(socketPath); err == nil {
		resp, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil && resp != nil {
			snap.Reachable = true
			snap.Status = *resp
		}
	}

	if !snap.Reachable {
		// Without a running instance the reader is free to probe directly.
		snap.Readers = preflight.ProbeReaders(establish)
		snap.Status.LockPath = cfg.LockPath()
		snap.Status.LockMode = cfg.Lock.Mode
	} else if snap.Status.Reader != "" {
		snap.Readers = preflight.ReaderProbe{Readers: []string{snap.Status.Reader}}
	}

	if len(snap.Status.Dependencies) == 0 {
		snap.Status.Dependencies = ResolveDependencies(cfg)
	}
	snap.SystemChecks = BuildSystemChecks(ctx, cfg, snap)
	snap.DependencySummary = BuildDependencySummary(snap.Status.Dependencies)
	return snap, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(cfg)
	statuses := make([]ipc.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return statuses
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

func isConnectionDropped(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection is shut down") ||
		strings.Contains(msg, "unexpected EOF") ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
