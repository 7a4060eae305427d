package pcsc

import (
	"errors"
	"fmt"
	"runtime"
)

// EscapeFunction is the vendor function number used for reader escape commands.
const EscapeFunction = 3500

// ControlCode computes SCARD_CTL_CODE(code) for the given operating system.
// pcsc-lite (Linux, macOS, BSD) offsets from 0x42000000; WinSCard builds a
// FILE_DEVICE_SMARTCARD ioctl.
func ControlCode(goos string, code uint32) uint32 {
	if goos == "windows" {
		return 0x31<<16 | code<<2
	}
	return 0x42000000 + code
}

// EscapeControlCode is the SCARD_CTL_CODE(3500) value for the running host.
func EscapeControlCode() uint32 {
	return ControlCode(runtime.GOOS, EscapeFunction)
}

// DisableBeep opens a direct session to reader, sends the beep-disable escape
// command and closes the session. It returns a *StatusError when the reader
// answers with anything other than 90 00.
func DisableBeep(ctx Context, reader string) (err error) {
	if ctx == nil {
		return ErrContextUnavailable
	}
	card, err := ctx.ConnectDirect(reader)
	if err != nil {
		return err
	}
	defer func() {
		if derr := card.Disconnect(); derr != nil && err == nil {
			err = fmt.Errorf("disconnect direct session: %w", derr)
		}
	}()

	resp, err := card.Control(EscapeControlCode(), DisableBeepCommand())
	if err != nil {
		return fmt.Errorf("send escape command: %w", err)
	}
	if _, err := CheckResponse(resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr
		}
		return fmt.Errorf("escape response % x: %w", resp, err)
	}
	return nil
}
