package pcsc

import (
	"encoding/hex"
	"fmt"
)

// StatusSuccess is the SW1/SW2 pair reported for a successful command.
const StatusSuccess StatusWord = 0x9000

// StatusWord is the two-byte trailer of an APDU response.
type StatusWord uint16

func (sw StatusWord) String() string {
	return fmt.Sprintf("%02X %02X", byte(sw>>8), byte(sw))
}

// OK reports whether the status word signals success.
func (sw StatusWord) OK() bool {
	return sw == StatusSuccess
}

// GetUIDCommand returns the PC/SC pseudo-APDU that reads the card UID.
func GetUIDCommand() []byte {
	return []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}
}

// DisableBeepCommand returns the reader escape payload that silences the buzzer.
func DisableBeepCommand() []byte {
	return []byte{0xFF, 0x00, 0x52, 0x00, 0x00}
}

// StatusError reports a response whose status word is not StatusSuccess.
type StatusError struct {
	Status   StatusWord
	Response []byte
}

func (e *StatusError) Error() string {
	if len(e.Response) == 0 {
		return fmt.Sprintf("card returned status %s", e.Status)
	}
	return fmt.Sprintf("card returned status %s (response % x)", e.Status, e.Response)
}

// ResponseHex renders the raw response for log fields.
func (e *StatusError) ResponseHex() string {
	return hex.EncodeToString(e.Response)
}

// SplitResponse separates the data bytes from the trailing status word.
func SplitResponse(resp []byte) ([]byte, StatusWord, error) {
	if len(resp) < 2 {
		return nil, 0, fmt.Errorf("short response: got %d bytes", len(resp))
	}
	n := len(resp) - 2
	sw := StatusWord(uint16(resp[n])<<8 | uint16(resp[n+1]))
	return resp[:n], sw, nil
}

// CheckResponse returns the data portion of resp, or a *StatusError when the
// status word does not signal success.
func CheckResponse(resp []byte) ([]byte, error) {
	data, sw, err := SplitResponse(resp)
	if err != nil {
		return nil, err
	}
	if !sw.OK() {
		return nil, &StatusError{Status: sw, Response: append([]byte(nil), resp...)}
	}
	return data, nil
}
