package dispatch

import (
	"errors"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnsupported indicates no clipboard utility is available on the host.
var ErrClipboardUnsupported = errors.New("clipboard unsupported: install xclip, xsel or wl-clipboard")

// SystemClipboard writes through the platform clipboard.
type SystemClipboard struct{}

// Set implements Clipboard.
func (SystemClipboard) Set(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(text)
}

// ClipboardAvailable reports whether a clipboard backend was found.
func ClipboardAvailable() bool {
	return !clipboard.Unsupported
}
