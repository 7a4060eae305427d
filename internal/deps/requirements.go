package deps

import (
	"runtime"

	"nfckeyboard/internal/config"
)

// Requirements lists the external programs the configured output path needs.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{
			Name:        "pcscd",
			Command:     "pcscd",
			Description: "PC/SC daemon that owns the card reader",
			Optional:    runtime.GOOS != "linux",
		},
	}
	if cfg == nil {
		return reqs
	}

	usesClipboard := cfg.Output.Mode == config.OutputModePaste || cfg.Output.Mode == config.OutputModeClipboard
	if usesClipboard && runtime.GOOS == "linux" {
		reqs = append(reqs, Requirement{
			Name:         "Clipboard tool",
			Command:      "xclip",
			Alternatives: []string{"xsel", "wl-copy"},
			Description:  "Writes the UID to the desktop clipboard",
		})
	}
	if cfg.Output.Mode == config.OutputModePaste && cfg.Output.PasteBackend == config.PasteBackendCommand && len(cfg.Output.PasteCommand) > 0 {
		reqs = append(reqs, Requirement{
			Name:        "Paste command",
			Command:     cfg.Output.PasteCommand[0],
			Description: "Sends the paste shortcut to the focused window",
		})
	}
	return reqs
}

// Check evaluates Requirements(cfg).
func Check(cfg *config.Config) []Status {
	return CheckBinaries(Requirements(cfg))
}
