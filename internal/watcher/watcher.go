package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"nfckeyboard/internal/dispatch"
	"nfckeyboard/internal/logging"
	"nfckeyboard/internal/pcsc"
)

const (
	// DefaultIdleInterval is the presence probe period while no card is seated.
	DefaultIdleInterval = 500 * time.Millisecond
	// DefaultRemovalInterval is the removal probe period after a card was processed.
	DefaultRemovalInterval = 200 * time.Millisecond
)

// Sleeper blocks for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Watcher.
type Option func(*Watcher)

// WithIdleInterval overrides DefaultIdleInterval.
func WithIdleInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.idle = d
		}
	}
}

// WithRemovalInterval overrides DefaultRemovalInterval.
func WithRemovalInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.removal = d
		}
	}
}

// WithSleeper replaces the timer-based sleep used by Run.
func WithSleeper(s Sleeper) Option {
	return func(w *Watcher) {
		if s != nil {
			w.sleep = s
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logging.NewComponentLogger(logger, "card-watcher")
	}
}

// WithPauseFunc suspends probing for new cards while fn reports true.
func WithPauseFunc(fn func() bool) Option {
	return func(w *Watcher) {
		w.isPaused = fn
	}
}

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

// Snapshot is a point-in-time view of the watcher for status reporting. The
// UID itself is never retained.
type Snapshot struct {
	State            State
	Reader           string
	Paused           bool
	SessionID        string
	Sessions         int64
	Dispatches       int64
	ReadFailures     int64
	DispatchFailures int64
	LastDispatch     time.Time
}

// Watcher drives the card presence state machine for one reader.
type Watcher struct {
	pcsc       pcsc.Context
	dispatcher dispatch.Dispatcher
	idle       time.Duration
	removal    time.Duration
	sleep      Sleeper
	logger     *slog.Logger
	isPaused   func() bool
	now        func() time.Time

	mu        sync.Mutex
	reader    string
	state     State
	card      pcsc.Card
	sessionID string
	stats     Snapshot
}

// New returns a watcher in StateNoCard.
func New(ctx pcsc.Context, reader string, d dispatch.Dispatcher, opts ...Option) *Watcher {
	w := &Watcher{
		pcsc:       ctx,
		dispatcher: d,
		reader:     reader,
		idle:       DefaultIdleInterval,
		removal:    DefaultRemovalInterval,
		sleep:      sleepContext,
		logger:     logging.NewComponentLogger(nil, "card-watcher"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run steps the state machine until ctx ends. Any open card session is
// released before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if w.pcsc == nil {
		return pcsc.ErrContextUnavailable
	}
	if w.dispatcher == nil {
		return errors.New("watcher: dispatcher is required")
	}
	defer w.closeCard()

	w.logger.Info("card watcher started",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.String(logging.FieldReader, w.Reader()),
		logging.Duration("idle_interval", w.idle),
		logging.Duration("removal_interval", w.removal),
	)
	for {
		delay := w.Step(ctx)
		if ctx.Err() != nil {
			break
		}
		if delay <= 0 {
			continue
		}
		if err := w.sleep(ctx, delay); err != nil {
			break
		}
	}
	w.logger.Info("card watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
	return nil
}

// Step performs one state transition and returns the delay before the next.
func (w *Watcher) Step(ctx context.Context) time.Duration {
	switch w.State() {
	case StateCardPresentUnprocessed:
		return w.processCard(ctx)
	case StateCardPresentProcessed:
		return w.checkRemoval(ctx)
	default:
		return w.probe(ctx)
	}
}

func (w *Watcher) probe(ctx context.Context) time.Duration {
	if w.isPaused != nil && w.isPaused() {
		return w.idle
	}
	reader := w.Reader()
	card, err := w.pcsc.Connect(reader)
	if err != nil {
		if !errors.Is(err, pcsc.ErrNoCard) {
			w.logger.Debug("presence check failed", logging.Error(err), logging.String(logging.FieldReader, reader))
		}
		return w.idle
	}

	sessionID := uuid.NewString()
	w.mu.Lock()
	w.card = card
	w.sessionID = sessionID
	w.state = StateCardPresentUnprocessed
	w.stats.Sessions++
	w.mu.Unlock()

	logging.WithContext(logging.WithSessionID(ctx, sessionID), w.logger).Debug("card detected",
		logging.String(logging.FieldEventType, "card_detected"),
		logging.String(logging.FieldState, StateCardPresentUnprocessed.String()),
	)
	return 0
}

func (w *Watcher) processCard(ctx context.Context) time.Duration {
	w.mu.Lock()
	card := w.card
	sessionID := w.sessionID
	w.mu.Unlock()

	ctx = logging.WithSessionID(ctx, sessionID)
	logger := logging.WithContext(ctx, w.logger)

	uid, err := readUID(card)
	w.closeCard()
	if err != nil {
		w.mu.Lock()
		w.stats.ReadFailures++
		w.mu.Unlock()
		attrs := []logging.Attr{
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "hold the card flat on the reader and present it again"),
			logging.String(logging.FieldImpact, "card ignored until removed"),
		}
		var statusErr *pcsc.StatusError
		if errors.As(err, &statusErr) {
			attrs = append(attrs, logging.String("status_word", statusErr.Status.String()))
		}
		logging.WarnWithContext(logger, "uid read failed", "uid_read_failed", attrs...)
	} else {
		text := FormatUID(uid)
		if err := w.dispatcher.Dispatch(ctx, text); err != nil {
			w.mu.Lock()
			w.stats.DispatchFailures++
			w.mu.Unlock()
			logging.ErrorWithContext(logger, "uid dispatch failed", "dispatch_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check clipboard and keyboard access for the desktop session"),
				logging.String(logging.FieldImpact, "uid was not typed"),
			)
		} else {
			w.mu.Lock()
			w.stats.Dispatches++
			w.stats.LastDispatch = w.now()
			w.mu.Unlock()
			logger.Info("uid dispatched",
				logging.String(logging.FieldEventType, "uid_dispatched"),
				logging.Int("uid_bytes", len(uid)),
			)
		}
	}

	w.setState(StateCardPresentProcessed)
	return 0
}

func readUID(card pcsc.Card) ([]byte, error) {
	if card == nil {
		return nil, pcsc.ErrNoCard
	}
	resp, err := card.Transmit(pcsc.GetUIDCommand())
	if err != nil {
		return nil, fmt.Errorf("transmit get uid: %w", err)
	}
	data, err := pcsc.CheckResponse(resp)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("card returned an empty uid")
	}
	return data, nil
}

func (w *Watcher) checkRemoval(ctx context.Context) time.Duration {
	card, err := w.pcsc.Connect(w.Reader())
	if err == nil {
		_ = card.Disconnect()
		return w.removal
	}

	w.mu.Lock()
	sessionID := w.sessionID
	w.sessionID = ""
	w.state = StateNoCard
	w.mu.Unlock()

	logging.WithContext(logging.WithSessionID(ctx, sessionID), w.logger).Debug("card removed",
		logging.String(logging.FieldEventType, "card_removed"),
	)
	return 0
}

func (w *Watcher) closeCard() {
	w.mu.Lock()
	card := w.card
	w.card = nil
	w.mu.Unlock()
	if card == nil {
		return
	}
	if err := card.Disconnect(); err != nil {
		w.logger.Debug("card disconnect failed", logging.Error(err))
	}
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the current state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Reader returns the reader being watched.
func (w *Watcher) Reader() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reader
}

// SetReader switches to a different reader, for example after the original
// one was unplugged and another enumerated first.
func (w *Watcher) SetReader(reader string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reader = reader
}

// Snapshot returns counters and the current state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := w.stats
	snap.State = w.state
	snap.Reader = w.reader
	snap.SessionID = w.sessionID
	if w.isPaused != nil {
		snap.Paused = w.isPaused()
	}
	return snap
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
