package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	return newRootCommandWith(nil)
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	var socketFlag string
	var configFlag string
	var logLevelFlag string

	if ctx == nil {
		ctx = newCommandContext()
	}
	ctx.socketFlag = &socketFlag
	ctx.configFlag = &configFlag
	ctx.logLevelFlag = &logLevelFlag

	rootCmd := &cobra.Command{
		Use:           "nfckeyboard",
		Short:         "Type NFC card UIDs into the focused window",
		Long:          "nfckeyboard watches a PC/SC card reader and pastes the UID of every presented card as lowercase colon-separated hex.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatcher(cmd, ctx)
		},
	}

	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "Path to the nfckeyboard IPC socket")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(ctx))
	for _, cmd := range newControlCommands(ctx) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newReadersCommand(ctx))
	rootCmd.AddCommand(newBeepCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
