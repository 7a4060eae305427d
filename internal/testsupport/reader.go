package testsupport

import (
	"errors"
	"sync"

	"nfckeyboard/internal/pcsc"
)

// FakeReaderContext is a scripted pcsc.Context. Each Connect consumes one entry
// of Presence; once the script is exhausted the last entry repeats, and an
// empty script means the reader stays empty.
type FakeReaderContext struct {
	Readers  []string
	ListErr  error
	Presence []bool

	// TransmitResponse is returned for every Transmit, status word included.
	TransmitResponse []byte
	TransmitErr      error

	// ControlResponse is returned for every Control on a direct session.
	ControlResponse []byte
	ControlErr      error
	DirectErr       error

	mu    sync.Mutex
	stats FakeReaderStats
}

// FakeReaderStats counts calls made against a FakeReaderContext.
type FakeReaderStats struct {
	Connects      int
	Directs       int
	Transmits     int
	Controls      int
	Disconnects   int
	Releases      int
	OpenSessions  int
	ControlCode   uint32
	ControlInput  []byte
	TransmitInput []byte
}

var errNotInField = errors.New("fake: card not in field")

// NewFakeReader returns a context exposing a single reader.
func NewFakeReader(presence ...bool) *FakeReaderContext {
	return &FakeReaderContext{
		Readers:          []string{"ACS ACR122U PICC Interface 00 00"},
		Presence:         presence,
		TransmitResponse: []byte{0x04, 0xA1, 0xB2, 0xC3, 0x90, 0x00},
		ControlResponse:  []byte{0x90, 0x00},
	}
}

// Stats returns a copy of the call counters.
func (f *FakeReaderContext) Stats() FakeReaderStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.stats
	out.ControlInput = append([]byte(nil), f.stats.ControlInput...)
	out.TransmitInput = append([]byte(nil), f.stats.TransmitInput...)
	return out
}

func (f *FakeReaderContext) ListReaders() ([]string, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]string(nil), f.Readers...), nil
}

func (f *FakeReaderContext) Connect(string) (pcsc.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	present := false
	idx := f.stats.Connects
	f.stats.Connects++
	if len(f.Presence) > 0 {
		if idx >= len(f.Presence) {
			idx = len(f.Presence) - 1
		}
		present = f.Presence[idx]
	}
	if !present {
		return nil, errors.Join(pcsc.ErrNoCard, errNotInField)
	}
	f.stats.OpenSessions++
	return &fakeCard{owner: f}, nil
}

func (f *FakeReaderContext) ConnectDirect(string) (pcsc.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Directs++
	if f.DirectErr != nil {
		return nil, f.DirectErr
	}
	f.stats.OpenSessions++
	return &fakeCard{owner: f, direct: true}, nil
}

func (f *FakeReaderContext) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Releases++
	return nil
}

type fakeCard struct {
	owner  *FakeReaderContext
	direct bool
	closed bool
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	f := c.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Transmits++
	f.stats.TransmitInput = append([]byte(nil), cmd...)
	if f.TransmitErr != nil {
		return nil, f.TransmitErr
	}
	return append([]byte(nil), f.TransmitResponse...), nil
}

func (c *fakeCard) Control(code uint32, in []byte) ([]byte, error) {
	f := c.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Controls++
	f.stats.ControlCode = code
	f.stats.ControlInput = append([]byte(nil), in...)
	if f.ControlErr != nil {
		return nil, f.ControlErr
	}
	return append([]byte(nil), f.ControlResponse...), nil
}

func (c *fakeCard) Disconnect() error {
	f := c.owner
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Disconnects++
	if !c.closed {
		c.closed = true
		f.stats.OpenSessions--
	}
	return nil
}
