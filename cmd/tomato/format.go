package main

import (
	"fmt"
	"strings"

	"tomato/pkg/protocol"

	"github.com/charmbracelet/lipgloss"
)

// formatClock renders signed seconds as [-| ]MM:SS for status bars. The
// leading column is "-" when the phase is overdue and a space otherwise.
func formatClock(seconds int64) string {
	sign := " "
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, seconds/60, seconds%60)
}

// Theme defines the colors used for styled terminal output.
type Theme struct {
	Busy    lipgloss.Color
	Break   lipgloss.Color
	Overdue lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default theme.
func DefaultTheme() Theme {
	return Theme{
		Busy:    lipgloss.Color("9"),   // Red
		Break:   lipgloss.Color("10"),  // Green
		Overdue: lipgloss.Color("11"),  // Yellow
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// phaseStyle colors a phase label.
func phaseStyle(theme Theme, p protocol.Phase) lipgloss.Style {
	color := theme.Busy
	if p.IsBreak() {
		color = theme.Break
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color)
}

// describeState renders a one-line human summary of a state snapshot.
// Remaining units are shown as seconds.
func describeState(st protocol.StateReply, styled bool) string {
	theme := DefaultTheme()
	clock := formatClock(st.Remaining)

	var b strings.Builder
	label := st.Phase.Title()
	if styled {
		label = phaseStyle(theme, st.Phase).Render(label)
	}
	b.WriteString(label)
	b.WriteString(" ")
	b.WriteString(strings.TrimSpace(clock))
	if st.NeedsAck {
		note := fmt.Sprintf("waiting: %s next", st.NextPhase.Title())
		if styled {
			note = lipgloss.NewStyle().Foreground(theme.Overdue).Render(note)
		}
		b.WriteString(" (" + note + ")")
	} else {
		note := "then " + st.NextPhase.Title()
		if styled {
			note = lipgloss.NewStyle().Foreground(theme.Muted).Render(note)
		}
		b.WriteString(" " + note)
	}
	return b.String()
}
