package protocol

import "fmt"

// CommandErrorReason classifies why a request line was rejected.
type CommandErrorReason string

// Rejection reasons.
const (
	ReasonNoTerminator CommandErrorReason = "missing newline terminator"
	ReasonEmptyLine    CommandErrorReason = "empty command line"
	ReasonInvalidText  CommandErrorReason = "command is not valid UTF-8"
	ReasonUnknown      CommandErrorReason = "unknown command"
)

// CommandError represents a malformed or unrecognized request. The connection
// that produced it is closed without a response.
type CommandError struct {
	Reason CommandErrorReason
	Line   string // Offending line, truncated; empty for ReasonEmptyLine.
}

func (e *CommandError) Error() string {
	if e.Line == "" {
		return fmt.Sprintf("reject command: %s", e.Reason)
	}
	return fmt.Sprintf("reject command %q: %s", e.Line, e.Reason)
}
