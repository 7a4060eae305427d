package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandPaster runs an external program (xdotool, wtype, ydotool) that sends
// the paste shortcut.
type CommandPaster struct {
	argv []string
}

// NewCommandPaster validates argv.
func NewCommandPaster(argv []string) (*CommandPaster, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("paste command is empty")
	}
	return &CommandPaster{argv: append([]string(nil), argv...)}, nil
}

// Binary returns the executable name for dependency checks.
func (p *CommandPaster) Binary() string {
	return p.argv[0]
}

// Paste implements Paster.
func (p *CommandPaster) Paste(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", p.argv[0], err, detail)
		}
		return fmt.Errorf("%s: %w", p.argv[0], err)
	}
	return nil
}
