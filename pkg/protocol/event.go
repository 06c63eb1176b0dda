package protocol

import "time"

// EventKind classifies a scheduler event.
type EventKind string

// Event kinds.
const (
	EventPhaseStarted EventKind = "phase_started"
	EventAnnounced    EventKind = "announced"
	EventAcknowledged EventKind = "acknowledged"
	EventSnoozed      EventKind = "snoozed"
)

// Event is one observable step of the cycle, as handed to a recorder.
type Event struct {
	Kind         EventKind
	Phase        Phase
	NextPhase    Phase
	Announcement string
	At           time.Time
}
