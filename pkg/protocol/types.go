// Package protocol defines the wire contract between the tomato daemon and its
// clients: phases, control actions, the published cycle snapshot, and the
// single-line command format spoken over the Unix socket.
package protocol

import (
	"fmt"
	"time"
)

// Phase is what the user is currently meant to be doing.
type Phase string

// Phase constants.
const (
	PhaseBusy       Phase = "busy"
	PhaseShortBreak Phase = "short-break"
	PhaseLongBreak  Phase = "long-break"
)

// Valid reports whether p is one of the three known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseBusy, PhaseShortBreak, PhaseLongBreak:
		return true
	default:
		return false
	}
}

// IsBreak reports whether p is a short or long break.
func (p Phase) IsBreak() bool {
	return p == PhaseShortBreak || p == PhaseLongBreak
}

// Title returns a human-readable label for p.
func (p Phase) Title() string {
	switch p {
	case PhaseBusy:
		return "Busy"
	case PhaseShortBreak:
		return "Short break"
	case PhaseLongBreak:
		return "Long break"
	default:
		return string(p)
	}
}

// ControlAction is a user decision fed back into the scheduler.
type ControlAction int

// ControlAction constants.
const (
	Acknowledge ControlAction = iota + 1
	Snooze
)

func (a ControlAction) String() string {
	switch a {
	case Acknowledge:
		return "acknowledge"
	case Snooze:
		return "snooze"
	default:
		return fmt.Sprintf("ControlAction(%d)", int(a))
	}
}

// CycleInfo is the scheduler's published view of the timer. Values are
// immutable once published; the scheduler replaces, never mutates, them.
type CycleInfo struct {
	Phase     Phase     `json:"phase"`
	NextPhase Phase     `json:"next_phase"`
	NeedsAck  bool      `json:"needs_ack"`
	StartedAt time.Time `json:"started_at"`

	// Announcement identifies one escalation publish. Empty while a phase is
	// running.
	Announcement string `json:"announcement,omitempty"`
}

// Remaining returns how much of total is left at now. The result is negative
// once the phase is overdue.
func (c CycleInfo) Remaining(total time.Duration, now time.Time) time.Duration {
	return total - now.Sub(c.StartedAt)
}

// InUnits converts d to a whole number of units, rounding half away from zero.
func InUnits(d, unit time.Duration) int64 {
	if unit <= 0 {
		unit = DefaultUnit
	}
	return int64(d.Round(unit) / unit)
}

// StateReply is the JSON body answered to GET STATE.
type StateReply struct {
	CycleInfo
	Remaining int64 `json:"remaining"`
	Total     int64 `json:"total"` // Configured length of Phase, in units.
}
