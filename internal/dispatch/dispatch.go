package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/logging"
)

// Dispatcher emits a formatted UID.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) error
}

// Clipboard replaces the clipboard contents.
type Clipboard interface {
	Set(text string) error
}

// Paster triggers the paste action in the focused application.
type Paster interface {
	Paste(ctx context.Context) error
}

// Preparer is implemented by dispatchers whose backends need warm-up before
// the first dispatch.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Prepare warms up d when it supports it.
func Prepare(ctx context.Context, d Dispatcher) error {
	if p, ok := d.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

// KeyboardDispatcher copies the text to the clipboard, waits for the clipboard
// owner to settle and then pastes it.
type KeyboardDispatcher struct {
	Clipboard Clipboard
	Paster    Paster
	Settle    time.Duration
	Logger    *slog.Logger
}

// Dispatch implements Dispatcher.
func (d *KeyboardDispatcher) Dispatch(ctx context.Context, text string) error {
	if err := d.Clipboard.Set(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	if d.Settle > 0 {
		timer := time.NewTimer(d.Settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := d.Paster.Paste(ctx); err != nil {
		return fmt.Errorf("paste: %w", err)
	}
	if d.Logger != nil {
		d.Logger.Debug("paste shortcut sent")
	}
	return nil
}

// Prepare forwards to the paster when it needs warm-up.
func (d *KeyboardDispatcher) Prepare(ctx context.Context) error {
	if p, ok := d.Paster.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

// ClipboardDispatcher only replaces the clipboard contents.
type ClipboardDispatcher struct {
	Clipboard Clipboard
}

// Dispatch implements Dispatcher.
func (d *ClipboardDispatcher) Dispatch(_ context.Context, text string) error {
	if err := d.Clipboard.Set(text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// WriterDispatcher writes each UID on its own line.
type WriterDispatcher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterDispatcher wraps w.
func NewWriterDispatcher(w io.Writer) *WriterDispatcher {
	return &WriterDispatcher{w: w}
}

// Dispatch implements Dispatcher.
func (d *WriterDispatcher) Dispatch(_ context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintln(d.w, text)
	return err
}

// New builds the dispatcher selected by cfg.Output. out receives UIDs in
// stdout mode and defaults to os.Stdout.
func New(cfg *config.Config, logger *slog.Logger, out io.Writer) (Dispatcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dispatch: config is required")
	}
	logger = logging.NewComponentLogger(logger, "dispatch")
	if out == nil {
		out = os.Stdout
	}

	switch cfg.Output.Mode {
	case config.OutputModeStdout:
		return NewWriterDispatcher(out), nil
	case config.OutputModeClipboard:
		return &ClipboardDispatcher{Clipboard: SystemClipboard{}}, nil
	case config.OutputModePaste, "":
	default:
		return nil, fmt.Errorf("dispatch: unsupported output mode %q", cfg.Output.Mode)
	}

	paster, err := newPaster(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &KeyboardDispatcher{
		Clipboard: SystemClipboard{},
		Paster:    paster,
		Settle:    cfg.SettleDelay(),
		Logger:    logger,
	}, nil
}

func newPaster(cfg *config.Config, logger *slog.Logger) (Paster, error) {
	switch cfg.Output.PasteBackend {
	case config.PasteBackendCommand:
		return NewCommandPaster(cfg.Output.PasteCommand)
	case config.PasteBackendUinput, "":
		combo, err := ParseKeyCombo(cfg.Output.PasteKeys)
		if err != nil {
			return nil, err
		}
		return NewUinputPaster(combo, logger), nil
	default:
		return nil, fmt.Errorf("dispatch: unsupported paste backend %q", cfg.Output.PasteBackend)
	}
}
