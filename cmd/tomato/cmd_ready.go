package main

import (
	"fmt"

	"tomato/pkg/protocol"

	"github.com/spf13/cobra"
)

// newReadyCmd creates the "tomato ready" subcommand.
func newReadyCmd() *cobra.Command {
	return newActionCmd("ready", "Acknowledge the pending phase change", protocol.CmdReady)
}

// newRemindCmd creates the "tomato remind" subcommand.
func newRemindCmd() *cobra.Command {
	return newActionCmd("remind", "Snooze the pending phase change", protocol.CmdRemind)
}

// newActionCmd builds a subcommand that sends one control command.
func newActionCmd(use, short string, c protocol.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := socketPath(cmd)
			if err != nil {
				return err
			}
			if err := sendAction(cmd.Context(), sock, c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), protocol.ReplyOK)
			return nil
		},
	}
}
