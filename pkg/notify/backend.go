// Package notify turns pending phase transitions into desktop notifications
// and feeds the user's choice back to the scheduler. The notification program
// itself sits behind the Backend interface so it can be swapped or stubbed.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Action is one labeled choice offered on a notification.
type Action struct {
	ID    string
	Label string
}

// Selection is what the user picked. The zero value means no selection:
// the notification was dismissed or expired.
type Selection struct {
	ActionID string
}

// NoSelection is returned when the user closed the notification without choosing.
var NoSelection = Selection{}

// Selected reports whether an action was chosen.
func (s Selection) Selected() bool {
	return s.ActionID != ""
}

// Backend shows a notification and waits for the user's answer. An error means
// the backend could not be invoked or failed; it is never a user choice.
type Backend interface {
	Notify(ctx context.Context, msg string, actions []Action) (Selection, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, msg string, actions []Action) (Selection, error)

// Notify calls f.
func (f BackendFunc) Notify(ctx context.Context, msg string, actions []Action) (Selection, error) {
	return f(ctx, msg, actions)
}

// Backend names accepted by NewBackend.
const (
	BackendDunstify   = "dunstify"
	BackendNotifySend = "notify-send"
	BackendNone       = "none"
)

// NewBackend returns the named backend. An empty name selects dunstify.
func NewBackend(name string, runner CommandRunner) (Backend, error) {
	if runner == nil {
		runner = &ExecCommandRunner{}
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendDunstify:
		return NewDunstify(runner), nil
	case BackendNotifySend:
		return NewNotifySend(runner), nil
	case BackendNone:
		return noneBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown notification backend %q", name)
	}
}

// noneBackend shows nothing. Acknowledgment then only comes from socket clients.
type noneBackend struct{}

func (noneBackend) Notify(context.Context, string, []Action) (Selection, error) {
	return NoSelection, nil
}
