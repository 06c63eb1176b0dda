package main

import (
	"fmt"

	"tomato/internal/buildinfo"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root tomato command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tomato",
		Short:         "Pomodoro timer daemon",
		Long:          "tomato runs a pomodoro cycle in the background and asks before every\nphase change. Clients talk to it over a Unix socket.",
		Version:       fmt.Sprintf("tomato %s", buildinfo.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().String("socket", "", "daemon socket path (default $TOMATO_HOME/tomato.sock)")

	cmd.AddCommand(
		newDaemonCmd(),
		newStatusCmd(),
		newReadyCmd(),
		newRemindCmd(),
		newStopCmd(),
		newWatchCmd(),
		newHistoryCmd(),
	)

	return cmd
}

// socketPath returns the --socket flag value or the resolved default.
func socketPath(cmd *cobra.Command) (string, error) {
	if v, _ := cmd.Flags().GetString("socket"); v != "" {
		return v, nil
	}
	paths, err := ResolvePaths()
	if err != nil {
		return "", err
	}
	return paths.SocketPath, nil
}
