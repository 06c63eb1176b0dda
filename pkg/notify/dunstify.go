package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// appName tags every notification so notification daemons can style them.
const appName = "tomato"

// Dunstify shows notifications through dunst's dunstify client. dunstify blocks
// until the notification closes and prints the chosen action id, or "1"
// (expired) / "2" (dismissed) when nothing was chosen. Every bubble carries
// the same stack tag, so a new reminder replaces one left behind by a killed
// client.
type Dunstify struct {
	runner CommandRunner
}

// NewDunstify creates a dunstify backend.
func NewDunstify(runner CommandRunner) *Dunstify {
	return &Dunstify{runner: runner}
}

// Notify implements Backend.
func (d *Dunstify) Notify(ctx context.Context, msg string, actions []Action) (Selection, error) {
	args := []string{"--appname=" + appName, "--hints=string:x-dunst-stack-tag:" + appName}
	if ms, ok := expireMillis(ctx); ok {
		args = append(args, "--timeout="+ms)
	}
	for _, a := range actions {
		args = append(args, fmt.Sprintf("--action=%s,%s", a.ID, a.Label))
	}
	args = append(args, appName, msg)

	out, err := d.runner.Run(ctx, "dunstify", args...)
	if err != nil {
		return NoSelection, fmt.Errorf("dunstify: %w", err)
	}
	return parseChoice(out, actions, "1", "2"), nil
}

// expireMillis is the time left before ctx's deadline in milliseconds, rounded
// up so the bubble never outlives the wait for it. 0 means "never expire" to
// notification daemons, hence the floor of 1.
func expireMillis(ctx context.Context) (string, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return "", false
	}
	ms := (time.Until(deadline) + time.Millisecond - 1) / time.Millisecond
	return strconv.FormatInt(int64(max(ms, 1)), 10), true
}

// parseChoice maps the program's stdout to a selection. Only ids that were
// offered count; closed markers and anything else are no selection.
func parseChoice(out []byte, actions []Action, closedMarkers ...string) Selection {
	choice := strings.TrimSpace(string(out))
	for _, marker := range closedMarkers {
		if choice == marker {
			return NoSelection
		}
	}
	for _, a := range actions {
		if a.ID == choice {
			return Selection{ActionID: choice}
		}
	}
	return NoSelection
}
