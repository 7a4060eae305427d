package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nfckeyboard/internal/daemonctl"
	"nfckeyboard/internal/ipc"
)

const stopGracePeriod = 5 * time.Second

func newControlCommands(ctx *commandContext) []*cobra.Command {
	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show watcher, reader and dependency status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.configValue()
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg, ctx.establish)
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snap.Status)
			}
			renderStatus(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status as JSON")

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Stop reacting to new cards until resumed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Pause()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Changed {
					fmt.Fprintln(out, "Card watching paused")
				} else {
					fmt.Fprintln(out, "Card watching already paused")
				}
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume reacting to new cards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Resume()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Changed {
					fmt.Fprintln(out, "Card watching resumed")
				} else {
					fmt.Fprintln(out, "Card watching already active")
				}
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running nfckeyboard process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndWait(ctx.socketPath(), ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "nfckeyboard is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed unresponsive process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "nfckeyboard stopped")
			return nil
		},
	}

	return []*cobra.Command{statusCmd, pauseCmd, resumeCmd, stopCmd}
}

func renderStatus(stdout io.Writer, snap *daemonctl.StatusSnapshot) {
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range snap.SystemChecks {
		fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range dependencyLines(snap.Status.Dependencies, snap.DependencySummary, colorize) {
		fmt.Fprintln(stdout, line)
	}

	if !snap.Reachable {
		return
	}
	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Card Activity", colorize) {
		fmt.Fprintln(stdout, line)
	}
	w := snap.Status.Watcher
	last := "never"
	if !w.LastDispatch.IsZero() {
		last = w.LastDispatch.Local().Format(time.DateTime)
	}
	rows := [][]string{
		{"State", w.State},
		{"Cards seen", fmt.Sprint(w.Sessions)},
		{"UIDs sent", fmt.Sprint(w.Dispatches)},
		{"Read failures", fmt.Sprint(w.ReadFailures)},
		{"Send failures", fmt.Sprint(w.DispatchFailures)},
		{"Last sent", last},
		{"Lock", fmt.Sprintf("%s (%s)", snap.Status.LockPath, snap.Status.LockMode)},
		{"Log", snap.Status.LogPath},
	}
	fmt.Fprintln(stdout, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
}

func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}
