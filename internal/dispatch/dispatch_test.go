package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/dispatch"
	"nfckeyboard/internal/testsupport"
)

type recordingClipboard struct {
	events *[]string
	err    error
}

func (c recordingClipboard) Set(text string) error {
	*c.events = append(*c.events, "clipboard:"+text)
	return c.err
}

type recordingPaster struct {
	events *[]string
	err    error
}

func (p recordingPaster) Paste(context.Context) error {
	*p.events = append(*p.events, "paste")
	return p.err
}

func TestKeyboardDispatcherCopiesThenPastes(t *testing.T) {
	var events []string
	d := &dispatch.KeyboardDispatcher{
		Clipboard: recordingClipboard{events: &events},
		Paster:    recordingPaster{events: &events},
		Settle:    time.Millisecond,
	}

	if err := d.Dispatch(context.Background(), "04:a1:b2:c3"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	want := []string{"clipboard:04:a1:b2:c3", "paste"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestKeyboardDispatcherSkipsPasteWhenClipboardFails(t *testing.T) {
	var events []string
	d := &dispatch.KeyboardDispatcher{
		Clipboard: recordingClipboard{events: &events, err: errors.New("no display")},
		Paster:    recordingPaster{events: &events},
	}

	err := d.Dispatch(context.Background(), "04:a1")
	if err == nil || !strings.Contains(err.Error(), "set clipboard") {
		t.Fatalf("expected clipboard error, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("paste must not run after a failed clipboard write: %v", events)
	}
}

func TestKeyboardDispatcherHonoursCancellationDuringSettle(t *testing.T) {
	var events []string
	d := &dispatch.KeyboardDispatcher{
		Clipboard: recordingClipboard{events: &events},
		Paster:    recordingPaster{events: &events},
		Settle:    time.Hour,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.Dispatch(ctx, "04"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriterDispatcherWritesLines(t *testing.T) {
	var buf bytes.Buffer
	d := dispatch.NewWriterDispatcher(&buf)
	for _, uid := range []string{"04:a1:b2:c3", "de:ad:be:ef"} {
		if err := d.Dispatch(context.Background(), uid); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	if buf.String() != "04:a1:b2:c3\nde:ad:be:ef\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseKeyCombo(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		ctrl    bool
		shift   bool
		wantErr bool
	}{
		{in: "ctrl+v", want: "ctrl+v", ctrl: true},
		{in: " Ctrl + Shift + V ", want: "ctrl+shift+v", ctrl: true, shift: true},
		{in: "shift+insert", want: "shift+insert", shift: true},
		{in: "control+v", want: "ctrl+v", ctrl: true},
		{in: "v", want: "v"},
		{in: "meta+v", wantErr: true},
		{in: "ctrl+q", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			combo, err := dispatch.ParseKeyCombo(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKeyCombo: %v", err)
			}
			if combo.String() != tt.want {
				t.Fatalf("combo = %q, want %q", combo.String(), tt.want)
			}
			if combo.Ctrl != tt.ctrl || combo.Shift != tt.shift {
				t.Fatalf("unexpected modifiers %+v", combo)
			}
		})
	}
}

func TestCommandPasterRunsCommand(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "pasted")
	script := filepath.Join(dir, "fake-xdotool")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > "+marker+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	paster, err := dispatch.NewCommandPaster([]string{script, "key", "ctrl+v"})
	if err != nil {
		t.Fatalf("NewCommandPaster: %v", err)
	}
	if err := paster.Paste(context.Background()); err != nil {
		t.Fatalf("Paste: %v", err)
	}
	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if strings.TrimSpace(string(data)) != "key ctrl+v" {
		t.Fatalf("unexpected args %q", data)
	}
}

func TestCommandPasterReportsFailureOutput(t *testing.T) {
	script := filepath.Join(t.TempDir(), "broken")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho 'cannot open display' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	paster, err := dispatch.NewCommandPaster([]string{script})
	if err != nil {
		t.Fatalf("NewCommandPaster: %v", err)
	}
	err = paster.Paste(context.Background())
	if err == nil || !strings.Contains(err.Error(), "cannot open display") {
		t.Fatalf("expected stderr in error, got %v", err)
	}

	if _, err := dispatch.NewCommandPaster(nil); err == nil {
		t.Fatal("expected empty command to be rejected")
	}
}

func TestNewSelectsOutputMode(t *testing.T) {
	var buf bytes.Buffer
	cfg := testsupport.NewConfig(t, testsupport.WithOutputMode(config.OutputModeStdout))
	d, err := dispatch.New(cfg, nil, &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := d.(*dispatch.WriterDispatcher); !ok {
		t.Fatalf("expected WriterDispatcher, got %T", d)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithOutputMode(config.OutputModeClipboard))
	d, err = dispatch.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := d.(*dispatch.ClipboardDispatcher); !ok {
		t.Fatalf("expected ClipboardDispatcher, got %T", d)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithOutputMode(config.OutputModePaste))
	cfg.Output.PasteBackend = config.PasteBackendCommand
	d, err = dispatch.New(cfg, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	kd, ok := d.(*dispatch.KeyboardDispatcher)
	if !ok {
		t.Fatalf("expected KeyboardDispatcher, got %T", d)
	}
	if _, ok := kd.Paster.(*dispatch.CommandPaster); !ok {
		t.Fatalf("expected CommandPaster, got %T", kd.Paster)
	}

	cfg.Output.PasteBackend = config.PasteBackendUinput
	cfg.Output.PasteKeys = "hyper+v"
	if _, err := dispatch.New(cfg, nil, nil); err == nil {
		t.Fatal("expected invalid paste keys to be rejected")
	}
}
