package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/instancelock"
	"nfckeyboard/internal/pcsc"
	"nfckeyboard/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, fake *testsupport.FakeReaderContext, rec *testsupport.RecordingDispatcher) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, nil,
		daemon.WithContextFactory(func() (pcsc.Context, error) { return fake, nil }),
		daemon.WithDispatcher(rec),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonDispatchesCardAndStops(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeReader(false, false, true, true, false)
	rec := &testsupport.RecordingDispatcher{}
	d := newDaemon(t, cfg, fake, rec)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "dispatch", func() bool { return len(rec.Texts()) == 1 })
	if rec.Texts()[0] != "04:a1:b2:c3" {
		t.Fatalf("unexpected dispatch %q", rec.Texts()[0])
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Reader != fake.Readers[0] {
		t.Fatalf("unexpected reader %q", status.Reader)
	}
	if status.LockPath != cfg.LockPath() || status.LockMode != config.LockModeFlock {
		t.Fatalf("unexpected lock info %q/%q", status.LockPath, status.LockMode)
	}
	if status.Beep != daemon.BeepSkipped {
		t.Fatalf("expected beep step skipped, got %q", status.Beep)
	}
	if status.Watcher.Dispatches != 1 {
		t.Fatalf("unexpected watcher snapshot %+v", status.Watcher)
	}

	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}
	if err := d.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if d.Status().Running {
		t.Fatal("expected daemon to report stopped")
	}
	stats := fake.Stats()
	if stats.OpenSessions != 0 {
		t.Fatalf("leaked %d card sessions", stats.OpenSessions)
	}
	if stats.Releases == 0 {
		t.Fatal("expected pc/sc context to be released")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected restart after Stop to be refused")
	}
}

func TestDaemonStartFailsWithoutReader(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeReader(true)
	fake.Readers = nil
	rec := &testsupport.RecordingDispatcher{}
	d := newDaemon(t, cfg, fake, rec)

	err := d.Start(context.Background())
	if !errors.Is(err, pcsc.ErrNoReader) {
		t.Fatalf("expected ErrNoReader, got %v", err)
	}
	if fake.Stats().Connects != 0 {
		t.Fatal("no polling may happen without a reader")
	}
	if fake.Stats().Releases != 1 {
		t.Fatal("expected context to be released after the failure")
	}
	if d.Status().Running {
		t.Fatal("daemon must not report running after a failed start")
	}

	lock := instancelock.NewFileLock(cfg.LockPath())
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("instance lock should be released after a failed start: %v", err)
	}
	_ = lock.Release()
}

func TestDaemonStartFailsWhenContextUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, nil,
		daemon.WithContextFactory(func() (pcsc.Context, error) { return nil, errors.New("pcscd not running") }),
		daemon.WithDispatcher(&testsupport.RecordingDispatcher{}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); !errors.Is(err, pcsc.ErrContextUnavailable) {
		t.Fatalf("expected ErrContextUnavailable, got %v", err)
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	for _, mode := range []string{config.LockModeFlock, config.LockModeHeartbeat} {
		t.Run(mode, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithLockMode(mode))
			first := newDaemon(t, cfg, testsupport.NewFakeReader(), &testsupport.RecordingDispatcher{})
			if err := first.Start(context.Background()); err != nil {
				t.Fatalf("first Start: %v", err)
			}

			established := false
			second, err := daemon.New(cfg, nil,
				daemon.WithContextFactory(func() (pcsc.Context, error) {
					established = true
					return testsupport.NewFakeReader(), nil
				}),
				daemon.WithDispatcher(&testsupport.RecordingDispatcher{}),
			)
			if err != nil {
				t.Fatalf("daemon.New: %v", err)
			}
			if err := second.Start(context.Background()); !errors.Is(err, instancelock.ErrAlreadyRunning) {
				t.Fatalf("expected ErrAlreadyRunning, got %v", err)
			}
			if established {
				t.Fatal("second instance must not touch the reader")
			}
		})
	}
}

func TestDaemonBeepOutcomeIsReported(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBeepDisabled())

	t.Run("success", func(t *testing.T) {
		fake := testsupport.NewFakeReader()
		d := newDaemon(t, cfg, fake, &testsupport.RecordingDispatcher{})
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
		defer d.Stop()
		if got := d.Status().Beep; got != daemon.BeepDisabled {
			t.Fatalf("expected beep disabled, got %q", got)
		}
		if fake.Stats().Controls != 1 {
			t.Fatal("expected one escape command")
		}
	})

	t.Run("failure is not fatal", func(t *testing.T) {
		fake := testsupport.NewFakeReader()
		fake.ControlResponse = []byte{0x63, 0x00}
		d := newDaemon(t, cfg, fake, &testsupport.RecordingDispatcher{})
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("beep failure must not abort startup: %v", err)
		}
		defer d.Stop()
		status := d.Status()
		if status.Beep != daemon.BeepFailed || status.BeepDetail == "" {
			t.Fatalf("expected failed beep with detail, got %q %q", status.Beep, status.BeepDetail)
		}
		if !status.Running {
			t.Fatal("daemon should keep running")
		}
	})
}

func TestDaemonPauseResume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeReader(true)
	rec := &testsupport.RecordingDispatcher{}
	d := newDaemon(t, cfg, fake, rec)

	if !d.Pause() {
		t.Fatal("expected first Pause to change state")
	}
	if d.Pause() {
		t.Fatal("expected second Pause to be a no-op")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if fake.Stats().Connects != 0 || len(rec.Texts()) != 0 {
		t.Fatal("paused daemon must not probe for cards")
	}
	if !d.Status().Paused {
		t.Fatal("expected status to report paused")
	}

	if !d.Resume() {
		t.Fatal("expected Resume to change state")
	}
	waitFor(t, "dispatch after resume", func() bool { return len(rec.Texts()) == 1 })
}

func TestDaemonStopsWhenContextEnds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, testsupport.NewFakeReader(), &testsupport.RecordingDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit after context cancellation")
	}
}
