package watcher_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nfckeyboard/internal/logging"
	"nfckeyboard/internal/testsupport"
	"nfckeyboard/internal/watcher"
)

func newWatcher(fake *testsupport.FakeReaderContext, rec *testsupport.RecordingDispatcher, opts ...watcher.Option) *watcher.Watcher {
	return watcher.New(fake, fake.Readers[0], rec, opts...)
}

func TestFormatUID(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{in: []byte{0x04, 0xA1, 0xB2, 0xC3}, want: "04:a1:b2:c3"},
		{in: []byte{0x04, 0x5F, 0x12, 0x9A, 0x2B, 0x4C, 0x80}, want: "04:5f:12:9a:2b:4c:80"},
		{in: []byte{0x00}, want: "00"},
		{in: nil, want: ""},
	}
	for _, tt := range tests {
		if got := watcher.FormatUID(tt.in); got != tt.want {
			t.Fatalf("FormatUID(% x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if watcher.StateNoCard.String() != "no_card" ||
		watcher.StateCardPresentUnprocessed.String() != "card_present_unprocessed" ||
		watcher.StateCardPresentProcessed.String() != "card_present_processed" {
		t.Fatal("unexpected state names")
	}
}

func TestDispatchesOnceAfterIdlePolls(t *testing.T) {
	const idlePolls = 4
	presence := make([]bool, 0, idlePolls+1)
	for range idlePolls {
		presence = append(presence, false)
	}
	presence = append(presence, true)

	fake := testsupport.NewFakeReader(presence...)
	rec := &testsupport.RecordingDispatcher{}
	w := newWatcher(fake, rec)
	ctx := context.Background()

	for i := range idlePolls {
		if delay := w.Step(ctx); delay != watcher.DefaultIdleInterval {
			t.Fatalf("poll %d: expected idle delay, got %s", i, delay)
		}
		if len(rec.Texts()) != 0 {
			t.Fatalf("poll %d: nothing may be dispatched before a card is present", i)
		}
		if w.State() != watcher.StateNoCard {
			t.Fatalf("poll %d: unexpected state %s", i, w.State())
		}
	}

	if delay := w.Step(ctx); delay != 0 {
		t.Fatalf("detection should continue immediately, got %s", delay)
	}
	if w.State() != watcher.StateCardPresentUnprocessed {
		t.Fatalf("expected card_present_unprocessed, got %s", w.State())
	}
	if fake.Stats().Connects != idlePolls+1 {
		t.Fatalf("expected card to be found on poll %d, got %d connects", idlePolls+1, fake.Stats().Connects)
	}

	w.Step(ctx)
	texts := rec.Texts()
	if len(texts) != 1 || texts[0] != "04:a1:b2:c3" {
		t.Fatalf("expected a single dispatch of 04:a1:b2:c3, got %v", texts)
	}
	if w.State() != watcher.StateCardPresentProcessed {
		t.Fatalf("expected card_present_processed, got %s", w.State())
	}
	if fake.Stats().OpenSessions != 0 {
		t.Fatal("card session must be closed after the read")
	}
}

func TestSeatedCardIsDispatchedOnce(t *testing.T) {
	for _, removalChecks := range []int{0, 1, 5, 50} {
		presence := []bool{true}
		for range removalChecks {
			presence = append(presence, true)
		}
		presence = append(presence, false)

		fake := testsupport.NewFakeReader(presence...)
		rec := &testsupport.RecordingDispatcher{}
		w := newWatcher(fake, rec)
		ctx := context.Background()

		w.Step(ctx) // detect
		w.Step(ctx) // read + dispatch
		for i := range removalChecks {
			if delay := w.Step(ctx); delay != watcher.DefaultRemovalInterval {
				t.Fatalf("M=%d check %d: expected removal delay, got %s", removalChecks, i, delay)
			}
			if w.State() != watcher.StateCardPresentProcessed {
				t.Fatalf("M=%d check %d: card still seated, got state %s", removalChecks, i, w.State())
			}
		}
		w.Step(ctx) // removal detected
		if w.State() != watcher.StateNoCard {
			t.Fatalf("M=%d: expected no_card after removal, got %s", removalChecks, w.State())
		}
		w.Step(ctx) // idle

		if got := len(rec.Texts()); got != 1 {
			t.Fatalf("M=%d: expected exactly one dispatch, got %d", removalChecks, got)
		}
		stats := fake.Stats()
		if stats.Transmits != 1 {
			t.Fatalf("M=%d: expected one uid read, got %d", removalChecks, stats.Transmits)
		}
		if stats.OpenSessions != 0 {
			t.Fatalf("M=%d: leaked %d sessions", removalChecks, stats.OpenSessions)
		}
	}
}

func TestFailedReadIsNotRetriedWhileSeated(t *testing.T) {
	fake := testsupport.NewFakeReader(true)
	fake.TransmitResponse = []byte{0x6A, 0x82}
	rec := &testsupport.RecordingDispatcher{}
	w := newWatcher(fake, rec)
	ctx := context.Background()

	w.Step(ctx)
	w.Step(ctx)
	if w.State() != watcher.StateCardPresentProcessed {
		t.Fatalf("expected card_present_processed after a failed read, got %s", w.State())
	}
	for range 10 {
		w.Step(ctx)
	}

	if len(rec.Texts()) != 0 {
		t.Fatalf("nothing may be dispatched on a failed read: %v", rec.Texts())
	}
	if fake.Stats().Transmits != 1 {
		t.Fatalf("expected a single read attempt, got %d", fake.Stats().Transmits)
	}
	snap := w.Snapshot()
	if snap.ReadFailures != 1 || snap.Dispatches != 0 {
		t.Fatalf("unexpected counters %+v", snap)
	}
}

func TestTransmitErrorDoesNotStopWatcher(t *testing.T) {
	fake := testsupport.NewFakeReader(true, false, true, false)
	fake.TransmitErr = errors.New("card removed mid-read")
	rec := &testsupport.RecordingDispatcher{}
	w := newWatcher(fake, rec)
	ctx := context.Background()

	for range 8 {
		w.Step(ctx)
	}
	if snap := w.Snapshot(); snap.ReadFailures != 2 || snap.Sessions != 2 {
		t.Fatalf("expected two failed episodes, got %+v", snap)
	}
}

func TestDispatchFailureIsCounted(t *testing.T) {
	fake := testsupport.NewFakeReader(true)
	rec := &testsupport.RecordingDispatcher{Err: errors.New("no display")}
	w := newWatcher(fake, rec)
	ctx := context.Background()

	w.Step(ctx)
	w.Step(ctx)
	snap := w.Snapshot()
	if snap.DispatchFailures != 1 || snap.Dispatches != 0 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	if snap.State != watcher.StateCardPresentProcessed {
		t.Fatalf("expected card_present_processed, got %s", snap.State)
	}
}

func TestNewCardAfterRemovalIsDispatched(t *testing.T) {
	fake := testsupport.NewFakeReader(true, true, false, false, true, true, false)
	rec := &testsupport.RecordingDispatcher{}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	w := newWatcher(fake, rec, watcher.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for range 12 {
		w.Step(ctx)
	}
	if got := len(rec.Texts()); got != 2 {
		t.Fatalf("expected one dispatch per presence episode, got %d", got)
	}
	snap := w.Snapshot()
	if snap.Sessions != 2 || snap.Dispatches != 2 {
		t.Fatalf("unexpected counters %+v", snap)
	}
	if !snap.LastDispatch.Equal(now) {
		t.Fatalf("unexpected last dispatch %s", snap.LastDispatch)
	}
}

func TestPausedWatcherDoesNotProbe(t *testing.T) {
	fake := testsupport.NewFakeReader(true)
	rec := &testsupport.RecordingDispatcher{}
	var paused atomic.Bool
	paused.Store(true)
	w := newWatcher(fake, rec, watcher.WithPauseFunc(paused.Load), watcher.WithIdleInterval(time.Second))
	ctx := context.Background()

	if delay := w.Step(ctx); delay != time.Second {
		t.Fatalf("expected idle delay while paused, got %s", delay)
	}
	if fake.Stats().Connects != 0 {
		t.Fatal("paused watcher must not probe the reader")
	}
	if !w.Snapshot().Paused {
		t.Fatal("snapshot should report paused")
	}

	paused.Store(false)
	w.Step(ctx)
	w.Step(ctx)
	if len(rec.Texts()) != 1 {
		t.Fatalf("expected dispatch after resume, got %v", rec.Texts())
	}
}

func TestRunUsesIntervalsAndReleasesCard(t *testing.T) {
	fake := testsupport.NewFakeReader(false, false, true, true, true, false)
	rec := &testsupport.RecordingDispatcher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	sleeper := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 6 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	w := newWatcher(fake, rec,
		watcher.WithIdleInterval(500*time.Millisecond),
		watcher.WithRemovalInterval(200*time.Millisecond),
		watcher.WithSleeper(sleeper),
	)
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []time.Duration{
		500 * time.Millisecond, // no card
		500 * time.Millisecond, // no card
		200 * time.Millisecond, // still seated
		200 * time.Millisecond, // still seated
		500 * time.Millisecond, // removed, idle again
		500 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %s, want %s (all %v)", i, delays[i], want[i], delays)
		}
	}
	if len(rec.Texts()) != 1 {
		t.Fatalf("expected one dispatch, got %v", rec.Texts())
	}
	if fake.Stats().OpenSessions != 0 {
		t.Fatal("Run must not leak card sessions")
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	fake := testsupport.NewFakeReader()
	rec := &testsupport.RecordingDispatcher{}
	w := newWatcher(fake, rec, watcher.WithIdleInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRunRequiresContext(t *testing.T) {
	w := watcher.New(nil, "reader", &testsupport.RecordingDispatcher{})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error without a pc/sc context")
	}
}

func TestDispatchLogOmitsUID(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run.log")
	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	fake := testsupport.NewFakeReader(true, true, false)
	rec := &testsupport.RecordingDispatcher{}
	w := newWatcher(fake, rec, watcher.WithLogger(logger))
	ctx := context.Background()
	for range 4 {
		w.Step(ctx)
	}
	if len(rec.Texts()) != 1 {
		t.Fatalf("expected one dispatch, got %v", rec.Texts())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "uid_dispatched") {
		t.Fatalf("expected a dispatch record, got %q", out)
	}
	for _, uid := range []string{"04:a1:b2:c3", "04a1b2c3", "04 a1 b2 c3"} {
		if strings.Contains(strings.ToLower(out), uid) {
			t.Fatalf("log output contains card uid %q:\n%s", uid, out)
		}
	}
}
