package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"nfckeyboard/internal/daemonctl"
	"nfckeyboard/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks for the reader, devices and dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			failed := 0
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range preflight.RunAll(cmd.Context(), cfg, ctx.establish) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failed++
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			fmt.Fprintln(out)

			deps := daemonctl.ResolveDependencies(cfg)
			summary := daemonctl.BuildDependencySummary(deps)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range dependencyLines(deps, summary, colorize) {
				fmt.Fprintln(out, line)
			}

			if failed > 0 || summary.MissingRequired > 0 {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}
}
