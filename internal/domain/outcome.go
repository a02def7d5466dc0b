package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchResult is the transient result of probing the registry with an
// embedding. The zero value means no enrolled identity matched.
type MatchResult struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Identified reports whether the probe resolved to an enrolled identity.
func (m MatchResult) Identified() bool {
	return m.Name != ""
}

// OutcomeKind is the terminal result of one verification attempt. The
// loggable kinds are written verbatim as the first field of a log line,
// so their spelling is a fixed contract with existing log consumers.
type OutcomeKind string

const (
	OutcomeAttendance   OutcomeKind = "ATTENDANCE"
	OutcomeAnomaly      OutcomeKind = "ANOMALY"
	OutcomeIncorrectPin OutcomeKind = "INCORRECT PIN ATTEMPT"

	// Internal terminal states, never written to the event logs.
	OutcomeUnmatched OutcomeKind = "UNMATCHED"
	OutcomeCancelled OutcomeKind = "CANCELLED"
)

// Loggable reports whether this kind produces an event log line.
func (k OutcomeKind) Loggable() bool {
	switch k {
	case OutcomeAttendance, OutcomeAnomaly, OutcomeIncorrectPin:
		return true
	}
	return false
}

// Outcome is the terminal record of one verification attempt.
type Outcome struct {
	AttemptID  uuid.UUID   `json:"attempt_id"`
	Kind       OutcomeKind `json:"kind"`
	Name       string      `json:"name,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`

	// AdminSession carries the signed session token when the verified
	// identity is the configured administrator. Not a log event.
	AdminSession string `json:"-"`
}
