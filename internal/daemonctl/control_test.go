package daemonctl_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/daemonctl"
	"nfckeyboard/internal/ipc"
	"nfckeyboard/internal/logging"
	"nfckeyboard/internal/pcsc"
	"nfckeyboard/internal/testsupport"
)

func runInstance(t *testing.T, fake *testsupport.FakeReaderContext) (*daemon.Daemon, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop(),
		daemon.WithContextFactory(func() (pcsc.Context, error) { return fake, nil }),
		daemon.WithDispatcher(&testsupport.RecordingDispatcher{}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	srv, err := ipc.NewServer(context.Background(), cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return d, cfg.SocketPath()
}

func TestStopAndWaitWithoutInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.StopAndWait(filepath.Join(t.TempDir(), "missing.sock"), cfg, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopAndWaitStopsInstance(t *testing.T) {
	d, socket := runInstance(t, testsupport.NewFakeReader())
	cfg := testsupport.NewConfig(t)

	result, err := daemonctl.StopAndWait(socket, cfg, 3*time.Second)
	if err != nil {
		t.Fatalf("StopAndWait: %v", err)
	}
	if !result.StopAcknowledged || result.ForcedKill {
		t.Fatalf("unexpected stop result %+v", result)
	}
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("instance still running")
	}
}

func TestBuildStatusSnapshotOnline(t *testing.T) {
	fake := testsupport.NewFakeReader()
	_, socket := runInstance(t, fake)
	cfg := testsupport.NewConfig(t)

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), socket, cfg, nil)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if !snap.Reachable || !snap.Status.Running {
		t.Fatalf("expected live status, got %+v", snap.Status)
	}
	if snap.Readers.Selected() != fake.Readers[0] {
		t.Fatalf("unexpected reader %q", snap.Readers.Selected())
	}
	if snap.SystemChecks[0].Severity != daemonctl.SeverityOK {
		t.Fatalf("expected running line first, got %+v", snap.SystemChecks[0])
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeReader()
	factory := func() (pcsc.Context, error) { return fake, nil }

	snap, err := daemonctl.BuildStatusSnapshot(context.Background(), cfg.SocketPath(), cfg, factory)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Reachable {
		t.Fatal("no instance should answer")
	}
	if snap.Readers.Selected() != fake.Readers[0] {
		t.Fatalf("expected offline reader probe, got %+v", snap.Readers)
	}
	if snap.Status.LockPath != cfg.LockPath() {
		t.Fatalf("expected lock path fallback, got %q", snap.Status.LockPath)
	}
	labels := make(map[string]daemonctl.StatusLine)
	for _, line := range snap.SystemChecks {
		labels[line.Label] = line
	}
	if labels["nfckeyboard"].Severity != daemonctl.SeverityWarn {
		t.Fatalf("expected not-running warning, got %+v", labels["nfckeyboard"])
	}
	if _, ok := labels["Instance Lock"]; !ok {
		t.Fatal("expected instance lock line when offline")
	}
	if labels["Reader"].Severity != daemonctl.SeverityOK {
		t.Fatalf("unexpected reader line %+v", labels["Reader"])
	}
}

func TestBuildStatusSnapshotRequiresConfig(t *testing.T) {
	if _, err := daemonctl.BuildStatusSnapshot(context.Background(), "x.sock", nil, nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuildDependencySummary(t *testing.T) {
	tests := []struct {
		name     string
		deps     []ipc.DependencyStatus
		severity string
		detail   string
	}{
		{name: "none", severity: daemonctl.SeverityInfo, detail: "No dependency checks configured"},
		{
			name:     "all available",
			deps:     []ipc.DependencyStatus{{Name: "pcscd", Available: true}},
			severity: daemonctl.SeverityOK,
			detail:   "1/1 available",
		},
		{
			name: "optional missing",
			deps: []ipc.DependencyStatus{
				{Name: "pcscd", Available: true},
				{Name: "Clipboard tool", Optional: true},
			},
			severity: daemonctl.SeverityWarn,
			detail:   "1/2 available (missing: 0 required, 1 optional)",
		},
		{
			name: "required missing",
			deps: []ipc.DependencyStatus{
				{Name: "pcscd"},
				{Name: "Clipboard tool", Optional: true},
			},
			severity: daemonctl.SeverityError,
			detail:   "0/2 available (missing: 1 required, 1 optional)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := daemonctl.BuildDependencySummary(tt.deps)
			if got.Severity != tt.severity || got.Detail != tt.detail {
				t.Fatalf("got %s %q, want %s %q", got.Severity, got.Detail, tt.severity, tt.detail)
			}
		})
	}
}
