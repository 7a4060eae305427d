package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nfckeyboard/internal/pcsc"
	"nfckeyboard/internal/preflight"
)

func newReadersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "readers",
		Short:       "List PC/SC readers; the first one is used",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			probe := preflight.ProbeReaders(ctx.establish)
			if probe.Err != nil {
				return fmt.Errorf("list readers: %w", probe.Err)
			}
			rows := make([][]string, 0, len(probe.Readers))
			for i, name := range probe.Readers {
				rows = append(rows, []string{strconv.Itoa(i), name, yesNo(i == 0)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Reader", "Selected"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newBeepCommand(ctx *commandContext) *cobra.Command {
	beepCmd := &cobra.Command{
		Use:         "beep",
		Short:       "Reader buzzer controls",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	beepCmd.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "Disable the buzzer of the first reader",
		Long: `Send the ACR122U buzzer-off pseudo-APDU (FF 00 52 00 00) as a direct escape
command. The setting is volatile and resets when the reader loses power.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pctx, err := ctx.establish()
			if err != nil {
				if !errors.Is(err, pcsc.ErrContextUnavailable) {
					err = fmt.Errorf("%w: %w", pcsc.ErrContextUnavailable, err)
				}
				return err
			}
			defer func() { _ = pctx.Release() }()

			reader, err := pcsc.FirstReader(pctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := pcsc.DisableBeep(pctx, reader); err != nil {
				var statusErr *pcsc.StatusError
				if errors.As(err, &statusErr) {
					fmt.Fprintf(out, "Failed to disable beep on %s (response: %s)\n", reader, statusErr.ResponseHex())
				} else {
					fmt.Fprintf(out, "Failed to disable beep on %s\n", reader)
				}
				return err
			}
			fmt.Fprintf(out, "Beep disabled on %s\n", reader)
			return nil
		},
	})
	return beepCmd
}
