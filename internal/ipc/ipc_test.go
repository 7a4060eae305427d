package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/ipc"
	"nfckeyboard/internal/logging"
	"nfckeyboard/internal/pcsc"
	"nfckeyboard/internal/testsupport"
	"nfckeyboard/internal/watcher"
)

func startServer(t *testing.T, ctl ipc.Controller, socket string) *ipc.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, socket, ctl, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return srv
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeReader(true)
	rec := &testsupport.RecordingDispatcher{}
	d, err := daemon.New(cfg, logging.NewNop(),
		daemon.WithContextFactory(func() (pcsc.Context, error) { return fake, nil }),
		daemon.WithDispatcher(rec),
		daemon.WithLogPath("/var/log/nfckeyboard.log"),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	startServer(t, d, cfg.SocketPath())

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	deadline := time.Now().Add(3 * time.Second)
	var status *ipc.StatusResponse
	for time.Now().Before(deadline) {
		status, err = client.Status()
		if err != nil {
			t.Fatalf("Status RPC failed: %v", err)
		}
		if status.Watcher.Dispatches == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.Watcher.Dispatches != 1 {
		t.Fatalf("expected one dispatch, got %+v", status.Watcher)
	}
	if status.Watcher.State != watcher.StateCardPresentProcessed.String() {
		t.Fatalf("unexpected state %q", status.Watcher.State)
	}
	if status.Reader != fake.Readers[0] || status.LockPath != cfg.LockPath() {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.LogPath != "/var/log/nfckeyboard.log" {
		t.Fatalf("unexpected log path %q", status.LogPath)
	}

	pause, err := client.Pause()
	if err != nil {
		t.Fatalf("Pause RPC failed: %v", err)
	}
	if !pause.Changed || !pause.Paused {
		t.Fatalf("unexpected pause response %+v", pause)
	}
	if again, err := client.Pause(); err != nil || again.Changed {
		t.Fatalf("expected repeated pause to be a no-op, got %+v err=%v", again, err)
	}
	if status, err = client.Status(); err != nil || !status.Paused {
		t.Fatalf("expected paused status, got %+v err=%v", status, err)
	}
	resume, err := client.Resume()
	if err != nil {
		t.Fatalf("Resume RPC failed: %v", err)
	}
	if !resume.Changed || resume.Paused {
		t.Fatalf("unexpected resume response %+v", resume)
	}

	stop, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stop.Stopping {
		t.Fatal("expected stop acknowledgement")
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after Stop RPC")
	}
}

type stubController struct {
	status daemon.Status
}

func (s *stubController) Status() daemon.Status { return s.status }
func (s *stubController) Pause() bool           { return false }
func (s *stubController) Resume() bool          { return false }
func (s *stubController) Stop()                 {}

func TestCloseRemovesSocketAndDropsClients(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "ctl.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv, err := ipc.NewServer(ctx, socket, &stubController{}, nil)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	defer client.Close()
	if _, err := client.Status(); err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on an idle client connection")
	}
	if _, err := ipc.Dial(socket); err == nil {
		t.Fatal("expected dial to fail after Close")
	}
}

func TestNewServerRequiresController(t *testing.T) {
	if _, err := ipc.NewServer(context.Background(), "unused.sock", nil, nil); err == nil {
		t.Fatal("expected error without controller")
	}
}

func TestFromDaemonStatus(t *testing.T) {
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	resp := ipc.FromDaemonStatus(daemon.Status{
		Running:   true,
		PID:       42,
		StartedAt: started,
		Reader:    "ACS ACR122U",
		Beep:      daemon.BeepFailed,
		Watcher: watcher.Snapshot{
			State:        watcher.StateNoCard,
			Dispatches:   3,
			ReadFailures: 1,
		},
	})
	if resp.PID != 42 || !resp.StartedAt.Equal(started) || resp.Beep != daemon.BeepFailed {
		t.Fatalf("unexpected conversion %+v", resp)
	}
	if resp.Watcher.State != "no_card" || resp.Watcher.Dispatches != 3 || resp.Watcher.ReadFailures != 1 {
		t.Fatalf("unexpected watcher conversion %+v", resp.Watcher)
	}
	if resp.Dependencies != nil {
		t.Fatalf("expected no dependencies, got %v", resp.Dependencies)
	}
}
