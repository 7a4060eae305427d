package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/deps"
	"nfckeyboard/internal/instancelock"
	"nfckeyboard/internal/ipc"
	"nfckeyboard/internal/logging"
	"nfckeyboard/internal/pcsc"
)

const (
	logPrefix      = "nfckeyboard-"
	currentLogName = "nfckeyboard.log"
)

// Options configures process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// DaemonOptions are forwarded to daemon.New.
	DaemonOptions []daemon.Option
}

// Run starts the watcher and blocks until a signal arrives, the daemon is
// stopped over IPC, or startup fails. Startup failures are returned so the
// caller can exit non-zero.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, logPrefix+runID+".log")

	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Logging.Level
	}
	// UIDs go to stdout in stdout mode, so console logs move to stderr.
	console := "stdout"
	if cfg.Output.Mode == config.OutputModeStdout {
		console = "stderr"
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{console, logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)

	daemonOpts := append([]daemon.Option{daemon.WithLogPath(logPath)}, opts.DaemonOptions...)
	d, err := daemon.New(cfg, logger, daemonOpts...)
	if err != nil {
		logging.ErrorWithContext(logger, "daemon setup failed", "daemon_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run nfckeyboard config validate"),
		)
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "nfckeyboard failed to start", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, startHint(err)),
			logging.String(logging.FieldImpact, "no cards will be read"),
		)
		return err
	}
	defer d.Stop()

	// The lock is held from here on, so the log pointer, pid file and socket
	// belong to us.
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		logging.WarnWithContext(logger, "unable to update current log link", "log_pointer_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "nfckeyboard logs may show an older run"),
		)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: logPrefix + "*.log", Exclude: []string{logPath}},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		logging.WarnWithContext(logger, "IPC server unavailable", "ipc_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status, pause, resume and stop commands cannot reach this process"),
			logging.String(logging.FieldErrorHint, "check permissions on the state directory"),
		)
	} else {
		defer ipcServer.Close()
		ipcServer.Serve()
	}

	select {
	case <-signalCtx.Done():
		logger.Info("nfckeyboard shutting down",
			logging.String(logging.FieldEventType, "shutdown_signal"))
	case <-d.Done():
		logger.Info("nfckeyboard watcher exited",
			logging.String(logging.FieldEventType, "watcher_exited"))
	}
	d.Stop()
	return d.Wait()
}

// CurrentLogPath is the pointer that always targets the newest run log.
func CurrentLogPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, currentLogName)
}

func startHint(err error) string {
	switch {
	case errors.Is(err, instancelock.ErrAlreadyRunning):
		return "another nfckeyboard instance holds the lock; run nfckeyboard status"
	case errors.Is(err, instancelock.ErrReclaimFailed):
		return "remove the stale lock file by hand"
	case errors.Is(err, pcsc.ErrNoReader):
		return "connect a PC/SC reader and check pcsc_scan"
	case errors.Is(err, pcsc.ErrContextUnavailable):
		return "start pcscd (systemctl start pcscd.socket)"
	default:
		return "run nfckeyboard check"
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("output_mode", cfg.Output.Mode),
		logging.String("paste_backend", cfg.Output.PasteBackend),
		logging.String("lock_mode", cfg.Lock.Mode),
		logging.Bool("disable_beep", cfg.Reader.DisableBeep),
	}
	for _, status := range deps.Check(cfg) {
		key := strings.ReplaceAll(strings.ToLower(status.Name), " ", "_")
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
