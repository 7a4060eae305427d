package pcsc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoReader indicates that no reader is attached to the system.
	ErrNoReader = errors.New("no card reader detected")
	// ErrNoCard indicates that the reader has no card in its field.
	ErrNoCard = errors.New("no card present")
	// ErrContextUnavailable indicates the PC/SC resource manager could not be reached.
	ErrContextUnavailable = errors.New("pc/sc context unavailable")
)

// Context is an established PC/SC resource manager session.
type Context interface {
	// ListReaders returns the attached readers in enumeration order. An empty
	// slice with a nil error means no reader is attached.
	ListReaders() ([]string, error)
	// Connect opens a shared card session. The returned error wraps ErrNoCard
	// when the reader is empty.
	Connect(reader string) (Card, error)
	// ConnectDirect opens a card-less session to the reader itself.
	ConnectDirect(reader string) (Card, error)
	Release() error
}

// Card is an open session to a card or, for direct sessions, to the reader.
type Card interface {
	Transmit(cmd []byte) ([]byte, error)
	Control(code uint32, in []byte) ([]byte, error)
	Disconnect() error
}

// FirstReader returns the first enumerated reader.
func FirstReader(ctx Context) (string, error) {
	if ctx == nil {
		return "", ErrContextUnavailable
	}
	readers, err := ctx.ListReaders()
	if err != nil {
		return "", fmt.Errorf("list readers: %w", err)
	}
	for _, reader := range readers {
		if strings.TrimSpace(reader) != "" {
			return reader, nil
		}
	}
	return "", ErrNoReader
}
