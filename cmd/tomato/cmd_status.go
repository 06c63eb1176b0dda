package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// newStatusCmd creates the "tomato status" subcommand.
func newStatusCmd() *cobra.Command {
	var polybar, asJSON, human bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show time left in the current phase",
		Long: "Prints the signed number of units left in the current phase (negative once\n" +
			"overdue). --polybar prints [-| ]MM:SS for status bars, --human a styled summary\n" +
			"and --json the full state snapshot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := socketPath(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case asJSON:
				st, err := queryState(cmd.Context(), sock)
				if err != nil {
					return err
				}
				data, err := json.Marshal(st)
				if err != nil {
					return fmt.Errorf("marshal state: %w", err)
				}
				fmt.Fprintln(out, string(data))
			case human:
				st, err := queryState(cmd.Context(), sock)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, describeState(st, isTerminal(out)))
			default:
				remaining, err := queryRemaining(cmd.Context(), sock)
				if err != nil {
					return err
				}
				if polybar {
					fmt.Fprintln(out, formatClock(remaining))
				} else {
					fmt.Fprintln(out, remaining)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&polybar, "polybar", false, "print [-| ]MM:SS")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full state as JSON")
	cmd.Flags().BoolVar(&human, "human", false, "print a styled one-line summary")
	cmd.MarkFlagsMutuallyExclusive("polybar", "json", "human")
	return cmd
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
