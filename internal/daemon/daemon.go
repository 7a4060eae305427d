package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/deps"
	"nfckeyboard/internal/dispatch"
	"nfckeyboard/internal/hotplug"
	"nfckeyboard/internal/instancelock"
	"nfckeyboard/internal/logging"
	"nfckeyboard/internal/pcsc"
	"nfckeyboard/internal/watcher"
)

// readerSettle is how long pcscd needs to enumerate a freshly attached reader.
const readerSettle = 1500 * time.Millisecond

// Beep preparation outcomes reported in Status.
const (
	BeepSkipped  = "skipped"
	BeepDisabled = "disabled"
	BeepFailed   = "failed"
)

// ContextFactory opens a PC/SC context.
type ContextFactory func() (pcsc.Context, error)

// Option customizes a Daemon.
type Option func(*Daemon)

// WithContextFactory replaces pcsc.Establish.
func WithContextFactory(f ContextFactory) Option {
	return func(d *Daemon) {
		if f != nil {
			d.establish = f
		}
	}
}

// WithDispatcher replaces the dispatcher built from configuration.
func WithDispatcher(disp dispatch.Dispatcher) Option {
	return func(d *Daemon) {
		d.dispatcher = disp
	}
}

// WithLocker replaces the configured instance lock.
func WithLocker(l instancelock.Locker) Option {
	return func(d *Daemon) {
		d.lock = l
	}
}

// WithWatcherOptions passes extra options to the card watcher.
func WithWatcherOptions(opts ...watcher.Option) Option {
	return func(d *Daemon) {
		d.watcherOpts = append(d.watcherOpts, opts...)
	}
}

// WithLogPath records the active log file for status reporting.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Paused       bool
	PID          int
	StartedAt    time.Time
	LockPath     string
	LockMode     string
	LogPath      string
	Reader       string
	Beep         string
	BeepDetail   string
	Hotplug      bool
	Watcher      watcher.Snapshot
	Dependencies []deps.Status
}

// Daemon owns the instance lock, the PC/SC context and the card watcher.
type Daemon struct {
	cfg         *config.Config
	base        *slog.Logger
	logger      *slog.Logger
	establish   ContextFactory
	dispatcher  dispatch.Dispatcher
	lock        instancelock.Locker
	watcherOpts []watcher.Option
	logPath     string

	paused  atomic.Bool
	running atomic.Bool
	stopped atomic.Bool

	mu         sync.Mutex
	pcsc       pcsc.Context
	watcher    *watcher.Watcher
	monitor    *hotplug.Monitor
	startedAt  time.Time
	beep       string
	beepDetail string
	cancel     context.CancelFunc
	done       chan struct{}
	runErr     error
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// New constructs a daemon. Nothing is acquired until Start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	d := &Daemon{
		cfg:       cfg,
		base:      logger,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		establish: pcsc.Establish,
		beep:      BeepSkipped,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.lock == nil {
		lock, err := instancelock.New(cfg, logger)
		if err != nil {
			return nil, err
		}
		d.lock = lock
	}
	if d.dispatcher == nil {
		disp, err := dispatch.New(cfg, logger, nil)
		if err != nil {
			return nil, fmt.Errorf("create dispatcher: %w", err)
		}
		d.dispatcher = disp
	}
	return d, nil
}

// Start acquires the lock and the reader and launches the card watcher. Errors
// wrap instancelock.ErrAlreadyRunning, instancelock.ErrReclaimFailed,
// pcsc.ErrContextUnavailable or pcsc.ErrNoReader.
func (d *Daemon) Start(ctx context.Context) error {
	if d.stopped.Load() {
		return errors.New("daemon already stopped")
	}
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	started := false
	defer func() {
		if !started {
			d.running.Store(false)
		}
	}()

	if err := d.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("acquire instance lock %s: %w", d.lock.Path(), err)
	}
	d.logger.Debug("instance lock acquired",
		logging.String("lock", d.lock.Path()),
		logging.String("mode", d.lock.Mode()),
	)

	pctx, err := d.establish()
	if err != nil {
		d.releaseLock()
		if !errors.Is(err, pcsc.ErrContextUnavailable) {
			err = fmt.Errorf("%w: %w", pcsc.ErrContextUnavailable, err)
		}
		return err
	}

	reader, err := pcsc.FirstReader(pctx)
	if err != nil {
		_ = pctx.Release()
		d.releaseLock()
		return err
	}
	d.logger.Info("card reader selected",
		logging.String(logging.FieldEventType, "reader_selected"),
		logging.String(logging.FieldReader, reader),
	)

	if d.cfg.Reader.DisableBeep {
		d.applyBeep(pctx, reader)
	}

	if err := dispatch.Prepare(ctx, d.dispatcher); err != nil {
		logging.WarnWithContext(d.logger, "dispatcher warm-up failed", "dispatch_prepare_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "add the user to the input group or switch output.paste_backend to command"),
			logging.String(logging.FieldImpact, "the first paste may be delayed or fail"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	opts := append([]watcher.Option{
		watcher.WithIdleInterval(d.cfg.IdlePollInterval()),
		watcher.WithRemovalInterval(d.cfg.RemovalPollInterval()),
		watcher.WithLogger(d.base),
		watcher.WithPauseFunc(d.paused.Load),
	}, d.watcherOpts...)
	w := watcher.New(pctx, reader, d.dispatcher, opts...)

	var monitor *hotplug.Monitor
	if d.cfg.Reader.Hotplug {
		monitor = hotplug.NewMonitor(d.base, d.handleHotplug(runCtx))
		_ = monitor.Start(runCtx)
	}

	d.mu.Lock()
	d.pcsc = pctx
	d.watcher = w
	d.monitor = monitor
	d.cancel = cancel
	d.startedAt = time.Now()
	d.mu.Unlock()

	go func() {
		err := w.Run(runCtx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
		close(d.done)
	}()

	started = true
	d.logger.Info("nfckeyboard started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lock.Path()),
		logging.String("lock_mode", d.lock.Mode()),
		logging.String(logging.FieldReader, reader),
		logging.String("output_mode", d.cfg.Output.Mode),
	)
	return nil
}

func (d *Daemon) applyBeep(pctx pcsc.Context, reader string) {
	err := pcsc.DisableBeep(pctx, reader)
	d.mu.Lock()
	if err != nil {
		d.beep = BeepFailed
		d.beepDetail = err.Error()
	} else {
		d.beep = BeepDisabled
		d.beepDetail = ""
	}
	d.mu.Unlock()

	if err != nil {
		attrs := []logging.Attr{
			logging.Error(err),
			logging.String(logging.FieldReader, reader),
			logging.String(logging.FieldErrorHint, "the reader may not support the buzzer escape command"),
			logging.String(logging.FieldImpact, "reader keeps beeping on card reads"),
		}
		var statusErr *pcsc.StatusError
		if errors.As(err, &statusErr) {
			attrs = append(attrs, logging.String("response", statusErr.ResponseHex()))
		}
		logging.WarnWithContext(d.logger, "failed to disable reader beep", "beep_disable_failed", attrs...)
		return
	}
	d.logger.Info("reader beep disabled",
		logging.String(logging.FieldEventType, "beep_disabled"),
		logging.String(logging.FieldReader, reader),
	)
}

// handleHotplug returns the USB event handler. A newly attached device may be
// the reader coming back, so the reader list is re-read and the beep setting
// re-applied once pcscd has caught up.
func (d *Daemon) handleHotplug(ctx context.Context) hotplug.Handler {
	return func(_ context.Context, event hotplug.Event) {
		if event.Action != hotplug.ActionAdd {
			d.logger.Debug("usb device removed", logging.String("devpath", event.DevPath))
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			timer := time.NewTimer(readerSettle)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			d.refreshReader()
		}()
	}
}

func (d *Daemon) refreshReader() {
	pctx, err := d.establish()
	if err != nil {
		d.logger.Debug("hotplug reader refresh skipped", logging.Error(err))
		return
	}
	defer func() { _ = pctx.Release() }()

	readers, err := pctx.ListReaders()
	if err != nil || len(readers) == 0 {
		return
	}

	d.mu.Lock()
	w := d.watcher
	d.mu.Unlock()
	if w == nil {
		return
	}
	current := w.Reader()
	if !slices.Contains(readers, current) {
		w.SetReader(readers[0])
		d.logger.Info("card reader changed",
			logging.String(logging.FieldEventType, "reader_changed"),
			logging.String("previous", current),
			logging.String(logging.FieldReader, readers[0]),
		)
		current = readers[0]
	}
	if d.cfg.Reader.DisableBeep {
		d.applyBeep(pctx, current)
	}
}

// Done is closed once the card watcher has exited.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the watcher exits and returns its error.
func (d *Daemon) Wait() error {
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Stop halts the watcher and releases the reader and the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		d.mu.Lock()
		cancel := d.cancel
		monitor := d.monitor
		d.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		<-d.done
		monitor.Stop()
		d.wg.Wait()

		d.mu.Lock()
		pctx := d.pcsc
		d.pcsc = nil
		d.mu.Unlock()
		if pctx != nil {
			if err := pctx.Release(); err != nil {
				d.logger.Debug("release pc/sc context failed", logging.Error(err))
			}
		}
		d.releaseLock()
		d.running.Store(false)
		d.logger.Info("nfckeyboard stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	})
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Release(); err != nil {
		d.logger.Warn("failed to release instance lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file manually if the next start is refused"),
			logging.String(logging.FieldImpact, "next start may report another running instance"),
		)
	}
}

// Pause stops probing for new cards. It reports whether the state changed.
func (d *Daemon) Pause() bool {
	changed := d.paused.CompareAndSwap(false, true)
	if changed {
		d.logger.Info("card watching paused", logging.String(logging.FieldEventType, "watcher_paused"))
	}
	return changed
}

// Resume restarts probing after Pause. It reports whether the state changed.
func (d *Daemon) Resume() bool {
	changed := d.paused.CompareAndSwap(true, false)
	if changed {
		d.logger.Info("card watching resumed", logging.String(logging.FieldEventType, "watcher_resumed"))
	}
	return changed
}

// Status returns a point-in-time view of the daemon.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	w := d.watcher
	status := Status{
		Running:    d.running.Load(),
		Paused:     d.paused.Load(),
		PID:        os.Getpid(),
		StartedAt:  d.startedAt,
		LockPath:   d.lock.Path(),
		LockMode:   d.lock.Mode(),
		LogPath:    d.logPath,
		Beep:       d.beep,
		BeepDetail: d.beepDetail,
		Hotplug:    d.monitor.Running(),
	}
	d.mu.Unlock()

	if w != nil {
		status.Watcher = w.Snapshot()
		status.Reader = status.Watcher.Reader
	}
	status.Dependencies = deps.Check(d.cfg)
	return status
}

// LogPath returns the active log file, if any.
func (d *Daemon) LogPath() string {
	return d.logPath
}
