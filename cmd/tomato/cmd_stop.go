package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStopCmd creates the "tomato stop" subcommand.
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  "Sends SIGINT to the daemon recorded in the PID file. A stale PID file is removed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}

			status, pid, err := DaemonStatus(paths.PIDPath)
			if err != nil {
				return err
			}

			switch status {
			case StatusStopped:
				fmt.Fprintln(cmd.OutOrStdout(), "daemon is not running")
				return nil
			case StatusStale:
				fmt.Fprintln(cmd.OutOrStdout(), "removing stale PID file (process already dead)")
				return RemovePIDFile(paths.PIDPath)
			case StatusRunning:
				fmt.Fprintf(cmd.OutOrStdout(), "sending SIGINT to daemon (PID %d)\n", pid)
				if err := StopDaemon(paths.PIDPath); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			}
			return nil
		},
	}
}
