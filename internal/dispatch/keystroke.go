package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"

	"nfckeyboard/internal/logging"
)

// uinputSettle is how long the kernel needs to announce a freshly created
// virtual keyboard before its events reach the desktop session.
const uinputSettle = 2 * time.Second

// KeyCombo is a single key with modifiers.
type KeyCombo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Key   string
	code  int
}

func (k KeyCombo) String() string {
	parts := make([]string, 0, 4)
	if k.Ctrl {
		parts = append(parts, "ctrl")
	}
	if k.Shift {
		parts = append(parts, "shift")
	}
	if k.Alt {
		parts = append(parts, "alt")
	}
	return strings.Join(append(parts, k.Key), "+")
}

var keyCodes = map[string]int{
	"v":      keybd_event.VK_V,
	"insert": keybd_event.VK_INSERT,
	"enter":  keybd_event.VK_ENTER,
	"tab":    keybd_event.VK_TAB,
}

// ParseKeyCombo parses shortcuts such as "ctrl+v", "shift+insert" or
// "ctrl+shift+v".
func ParseKeyCombo(value string) (KeyCombo, error) {
	var combo KeyCombo
	parts := strings.Split(strings.ToLower(strings.TrimSpace(value)), "+")
	for i, raw := range parts {
		part := strings.TrimSpace(raw)
		if i < len(parts)-1 {
			switch part {
			case "ctrl", "control":
				combo.Ctrl = true
			case "shift":
				combo.Shift = true
			case "alt":
				combo.Alt = true
			default:
				return KeyCombo{}, fmt.Errorf("paste keys %q: unknown modifier %q", value, part)
			}
			continue
		}
		code, ok := keyCodes[part]
		if !ok {
			return KeyCombo{}, fmt.Errorf("paste keys %q: unsupported key %q", value, part)
		}
		combo.Key = part
		combo.code = code
	}
	return combo, nil
}

// UinputPaster sends the paste shortcut through a virtual keyboard.
type UinputPaster struct {
	combo  KeyCombo
	logger *slog.Logger
	settle time.Duration

	mu sync.Mutex
	kb *keybd_event.KeyBonding
}

// NewUinputPaster returns a paster for combo. The virtual device is created on
// Prepare or on the first Paste.
func NewUinputPaster(combo KeyCombo, logger *slog.Logger) *UinputPaster {
	settle := time.Duration(0)
	if runtime.GOOS == "linux" {
		settle = uinputSettle
	}
	return &UinputPaster{combo: combo, logger: logging.NewComponentLogger(logger, "uinput"), settle: settle}
}

// Prepare creates the virtual keyboard.
func (p *UinputPaster) Prepare(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureLocked(ctx)
}

func (p *UinputPaster) ensureLocked(ctx context.Context) error {
	if p.kb != nil {
		return nil
	}
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("create virtual keyboard: %w", err)
	}
	if p.settle > 0 {
		timer := time.NewTimer(p.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.kb = &kb
	p.logger.Debug("virtual keyboard ready", logging.String("keys", p.combo.String()))
	return nil
}

// Paste implements Paster.
func (p *UinputPaster) Paste(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureLocked(ctx); err != nil {
		return err
	}
	p.kb.Clear()
	p.kb.SetKeys(p.combo.code)
	p.kb.HasCTRL(p.combo.Ctrl)
	p.kb.HasSHIFT(p.combo.Shift)
	p.kb.HasALT(p.combo.Alt)
	return p.kb.Launching()
}
