package main

import (
	"fmt"
	"time"

	"tomato/pkg/history"
	"tomato/pkg/protocol"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// newHistoryCmd creates the "tomato history" subcommand.
func newHistoryCmd() *cobra.Command {
	var (
		limit int
		today bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded phase changes",
		Long:  "Lists the most recent scheduler events from the history database,\nor with --today the number of busy phases completed since midnight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			store, err := history.OpenReadOnly(paths.HistoryPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()
			if today {
				now := time.Now()
				midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
				n, err := store.CompletedSince(cmd.Context(), midnight)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d completed today\n", n)
				return nil
			}

			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(out, "no history yet")
				return nil
			}
			styled := isTerminal(out)
			for _, ev := range events {
				fmt.Fprintln(out, formatEvent(ev, styled))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show (0 = all)")
	cmd.Flags().BoolVar(&today, "today", false, "count busy phases completed today")
	return cmd
}

// formatEvent renders one history row.
func formatEvent(ev protocol.Event, styled bool) string {
	stamp := ev.At.Local().Format("2006-01-02 15:04:05")
	var what string
	switch ev.Kind {
	case protocol.EventPhaseStarted:
		what = fmt.Sprintf("%s started", ev.Phase.Title())
	case protocol.EventAnnounced:
		what = fmt.Sprintf("%s due", ev.NextPhase.Title())
	case protocol.EventAcknowledged:
		what = fmt.Sprintf("%s acknowledged", ev.NextPhase.Title())
	case protocol.EventSnoozed:
		what = fmt.Sprintf("%s snoozed", ev.NextPhase.Title())
	default:
		what = string(ev.Kind)
	}
	if styled {
		theme := DefaultTheme()
		stamp = lipgloss.NewStyle().Foreground(theme.Muted).Render(stamp)
		if ev.Kind == protocol.EventPhaseStarted {
			what = phaseStyle(theme, ev.Phase).Render(what)
		}
	}
	return stamp + "  " + what
}
