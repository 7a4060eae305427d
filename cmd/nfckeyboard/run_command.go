package main

import (
	"github.com/spf13/cobra"

	"nfckeyboard/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the reader in the foreground (default)",
		Long: `Acquire the instance lock, select the first PC/SC reader and paste the UID
of every presented card. Runs until interrupted or stopped with
'nfckeyboard stop'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatcher(cmd, ctx)
		},
	}
}

func runWatcher(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
		LogLevel:      ctx.logLevel(),
		DaemonOptions: ctx.daemonOptions,
	})
}
