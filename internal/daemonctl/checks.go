package daemonctl

import (
	"context"
	"fmt"

	"nfckeyboard/internal/config"
	"nfckeyboard/internal/daemon"
	"nfckeyboard/internal/ipc"
	"nfckeyboard/internal/preflight"
)

// Status line severities.
const (
	SeverityOK    = "ok"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// StatusLine is one labelled row of status output.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// DependencySummary aggregates dependency readiness.
type DependencySummary struct {
	Total           int
	Available       int
	MissingRequired int
	MissingOptional int
	Severity        string
	Detail          string
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, snap *StatusSnapshot) []StatusLine {
	status := snap.Status
	lines := make([]StatusLine, 0, 6)

	if snap.Reachable && status.Running {
		lines = append(lines, StatusLine{Label: "nfckeyboard", Severity: SeverityOK, Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		if status.Paused {
			lines = append(lines, StatusLine{Label: "Card Watching", Severity: SeverityWarn, Detail: "Paused (run `nfckeyboard resume`)"})
		} else {
			lines = append(lines, StatusLine{Label: "Card Watching", Severity: SeverityOK, Detail: "Active (" + status.Watcher.State + ")"})
		}
	} else {
		lines = append(lines, StatusLine{Label: "nfckeyboard", Severity: SeverityWarn, Detail: "Not running (run `nfckeyboard run`)"})
		lock := preflight.CheckLock(ctx, cfg)
		severity := SeverityInfo
		if !lock.Passed {
			severity = SeverityError
		}
		lines = append(lines, StatusLine{Label: "Instance Lock", Severity: severity, Detail: lock.Detail})
	}

	switch {
	case snap.Readers.Err != nil:
		lines = append(lines, StatusLine{Label: "Reader", Severity: SeverityError, Detail: snap.Readers.Detail()})
	case snap.Readers.Selected() != "":
		lines = append(lines, StatusLine{Label: "Reader", Severity: SeverityOK, Detail: snap.Readers.Detail()})
	default:
		lines = append(lines, StatusLine{Label: "Reader", Severity: SeverityInfo, Detail: "Unknown"})
	}

	if cfg.Reader.DisableBeep {
		switch status.Beep {
		case daemon.BeepDisabled:
			lines = append(lines, StatusLine{Label: "Beep", Severity: SeverityOK, Detail: "Disabled"})
		case daemon.BeepFailed:
			lines = append(lines, StatusLine{Label: "Beep", Severity: SeverityWarn, Detail: "Disable failed: " + status.BeepDetail})
		default:
			lines = append(lines, StatusLine{Label: "Beep", Severity: SeverityInfo, Detail: "Disabled on start"})
		}
	} else {
		lines = append(lines, StatusLine{Label: "Beep", Severity: SeverityInfo, Detail: "Left at reader default"})
	}

	if snap.Reachable {
		if status.Hotplug {
			lines = append(lines, StatusLine{Label: "Hotplug", Severity: SeverityOK, Detail: "Netlink monitoring active"})
		} else if cfg.Reader.Hotplug {
			lines = append(lines, StatusLine{Label: "Hotplug", Severity: SeverityWarn, Detail: "Netlink unavailable (beep is not re-applied after replug)"})
		}
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(deps []ipc.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{
			Severity: SeverityInfo,
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range deps {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(deps) - missingCount
	severity := SeverityOK
	if missingRequired > 0 {
		severity = SeverityError
	} else if missingOptional > 0 {
		severity = SeverityWarn
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(deps), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(deps))
	}

	return DependencySummary{
		Total:           len(deps),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}
