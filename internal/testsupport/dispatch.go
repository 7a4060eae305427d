package testsupport

import (
	"context"
	"sync"
)

// RecordingDispatcher captures every dispatched UID.
type RecordingDispatcher struct {
	Err error

	mu    sync.Mutex
	texts []string
}

// Dispatch records text and returns Err.
func (r *RecordingDispatcher) Dispatch(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.Err
}

// Texts returns the dispatched strings in order.
func (r *RecordingDispatcher) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}
