package preflight

import (
	"context"
	"runtime"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/pcsc"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// ContextFactory opens a PC/SC context for the reader check.
type ContextFactory func() (pcsc.Context, error)

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled. A nil
// establish skips the reader check.
func RunAll(ctx context.Context, cfg *config.Config, establish ContextFactory) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if usesUinput(cfg) {
		results = append(results, CheckUinput(UinputDevice))
	}

	if establish != nil {
		results = append(results, CheckReader(establish))
	}

	results = append(results, CheckLock(ctx, cfg))
	return results
}

func usesUinput(cfg *config.Config) bool {
	return runtime.GOOS == "linux" &&
		cfg.Output.Mode == config.OutputModePaste &&
		cfg.Output.PasteBackend == config.PasteBackendUinput
}
