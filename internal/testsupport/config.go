package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"nfckeyboard/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Hotplug monitoring and beep suppression are off so tests never touch real
// hardware; poll intervals are shortened.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Reader.Hotplug = false
	cfgVal.Reader.DisableBeep = false
	cfgVal.Reader.IdlePollMS = 5
	cfgVal.Reader.RemovalPollMS = 2
	cfgVal.Output.Mode = config.OutputModeStdout
	cfgVal.Output.SettleMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithLockMode switches the instance lock strategy.
func WithLockMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Lock.Mode = mode
	}
}

// WithOutputMode overrides the dispatch mode.
func WithOutputMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Output.Mode = mode
	}
}

// WithBeepDisabled turns on beep suppression at startup.
func WithBeepDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reader.DisableBeep = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"pcscd"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
