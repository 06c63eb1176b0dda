package notify

import (
	"context"
	"fmt"
)

// NotifySend shows notifications through libnotify's notify-send (0.7.10 or
// newer, for --wait and --action). It prints the chosen action id, or nothing
// when the notification is closed. The bubble expires with ctx's deadline.
type NotifySend struct {
	runner CommandRunner
}

// NewNotifySend creates a notify-send backend.
func NewNotifySend(runner CommandRunner) *NotifySend {
	return &NotifySend{runner: runner}
}

// Notify implements Backend.
func (n *NotifySend) Notify(ctx context.Context, msg string, actions []Action) (Selection, error) {
	args := []string{"--app-name=" + appName, "--wait"}
	if ms, ok := expireMillis(ctx); ok {
		args = append(args, "--expire-time="+ms)
	}
	for _, a := range actions {
		args = append(args, fmt.Sprintf("--action=%s=%s", a.ID, a.Label))
	}
	args = append(args, appName, msg)

	out, err := n.runner.Run(ctx, "notify-send", args...)
	if err != nil {
		return NoSelection, fmt.Errorf("notify-send: %w", err)
	}
	return parseChoice(out, actions), nil
}
