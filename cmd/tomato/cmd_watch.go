package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tomato/pkg/protocol"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// newWatchCmd creates the "tomato watch" subcommand.
func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live countdown of the current phase",
		Long:  "Polls the daemon once a second and shows the current phase with a progress bar.\nPress r to acknowledge, s to snooze, q to quit.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sock, err := socketPath(cmd)
			if err != nil {
				return err
			}
			p := tea.NewProgram(newWatchModel(sock),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("run watch: %w", err)
			}
			return nil
		},
	}
}

// watchTickMsg triggers a state poll.
type watchTickMsg time.Time

// stateMsg carries a poll result. err is set when the daemon is unreachable.
type stateMsg struct {
	state protocol.StateReply
	err   error
}

// actionMsg reports the outcome of a ready/remind key press.
type actionMsg struct {
	cmd protocol.Command
	err error
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func fetchStateCmd(sock string) tea.Cmd {
	return func() tea.Msg {
		st, err := queryState(context.Background(), sock)
		return stateMsg{state: st, err: err}
	}
}

func sendActionCmd(sock string, c protocol.Command) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{cmd: c, err: sendAction(context.Background(), sock, c)}
	}
}

// watchModel is the Bubble Tea model for tomato watch.
type watchModel struct {
	socketPath string
	state      protocol.StateReply
	online     bool
	err        error
	flash      string
	bar        progress.Model
	theme      Theme
}

func newWatchModel(sock string) watchModel {
	return watchModel{
		socketPath: sock,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		theme:      DefaultTheme(),
	}
}

// Init implements tea.Model.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(fetchStateCmd(m.socketPath), watchTickCmd())
}

// Update implements tea.Model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, sendActionCmd(m.socketPath, protocol.CmdReady)
		case "s":
			return m, sendActionCmd(m.socketPath, protocol.CmdRemind)
		}

	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(60, msg.Width-4))

	case stateMsg:
		m.online = msg.err == nil
		m.err = msg.err
		if msg.err == nil {
			m.state = msg.state
		}

	case actionMsg:
		if msg.err != nil {
			m.flash = fmt.Sprintf("%s failed: %v", strings.ToLower(string(msg.cmd)), msg.err)
		} else {
			m.flash = fmt.Sprintf("%s sent", strings.ToLower(string(msg.cmd)))
		}
		return m, fetchStateCmd(m.socketPath)

	case watchTickMsg:
		return m, tea.Batch(fetchStateCmd(m.socketPath), watchTickCmd())
	}

	return m, nil
}

// elapsedFraction returns how much of the phase has passed, clamped to [0,1].
func (m watchModel) elapsedFraction() float64 {
	if m.state.Total <= 0 {
		return 0
	}
	f := float64(m.state.Total-m.state.Remaining) / float64(m.state.Total)
	return max(0, min(1, f))
}

// View implements tea.Model.
func (m watchModel) View() string {
	if !m.online {
		msg := "connecting to daemon..."
		if m.err != nil {
			msg = fmt.Sprintf("daemon offline: %v", m.err)
		}
		return lipgloss.NewStyle().Foreground(m.theme.Muted).Render(msg) + "\n\nq quit\n"
	}

	var b strings.Builder
	b.WriteString(describeState(m.state, true))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(m.elapsedFraction()))
	b.WriteString("\n\n")
	if m.flash != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(m.theme.Muted).Render(m.flash))
		b.WriteString("\n")
	}
	b.WriteString("r ready  s remind  q quit\n")
	return b.String()
}
