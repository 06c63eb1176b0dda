package protocol

import (
	"bytes"
	"unicode/utf8"
)

// Command is one recognized request line. Matching is exact and case-sensitive.
type Command string

const (
	CmdGetInfo  Command = "GET INFO"  // Seconds (units) left in the current phase.
	CmdGetState Command = "GET STATE" // JSON snapshot of the current cycle.
	CmdReady    Command = "READY"     // Enqueue Acknowledge.
	CmdRemind   Command = "REMIND"    // Enqueue Snooze.
)

// ReplyOK is the body answered to control commands.
const ReplyOK = "OK"

// Valid reports whether c is a recognized command.
func (c Command) Valid() bool {
	switch c {
	case CmdGetInfo, CmdGetState, CmdReady, CmdRemind:
		return true
	default:
		return false
	}
}

// Action returns the control action c enqueues, if any.
func (c Command) Action() (ControlAction, bool) {
	switch c {
	case CmdReady:
		return Acknowledge, true
	case CmdRemind:
		return Snooze, true
	default:
		return 0, false
	}
}

// Encode returns the request bytes a client writes for c.
func (c Command) Encode() []byte {
	return append([]byte(c), '\n')
}

// ParseCommand extracts the command from a full request body. Only the bytes
// up to the first newline are considered.
func ParseCommand(raw []byte) (Command, error) {
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return "", &CommandError{Reason: ReasonNoTerminator, Line: truncate(raw)}
	}
	line := raw[:idx]
	if len(line) == 0 {
		return "", &CommandError{Reason: ReasonEmptyLine}
	}
	if !utf8.Valid(line) {
		return "", &CommandError{Reason: ReasonInvalidText, Line: truncate(line)}
	}
	cmd := Command(line)
	if !cmd.Valid() {
		return "", &CommandError{Reason: ReasonUnknown, Line: truncate(line)}
	}
	return cmd, nil
}

func truncate(b []byte) string {
	const limit = 32
	if len(b) > limit {
		b = b[:limit]
	}
	return string(bytes.ToValidUTF8(b, []byte("?")))
}
