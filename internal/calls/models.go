package calls

import "time"

// CallRecord is the authoritative, persisted record of one call attempt.
//
// CallID is the platform-issued identifier of the parent (browser) leg and is
// immutable once written. Duration reflects only the PSTN leg's authoritative
// talk time; it is never derived from a client-side tick count.
type CallRecord struct {
	ID      int64  `json:"id" db:"id"`
	CallID  string `json:"call_id" db:"call_id"`
	AgentID string `json:"agent_id" db:"agent_id"`

	// Counterparty is the external phone number on the other end.
	Counterparty string `json:"phone_number" db:"counterparty"`

	Direction Direction  `json:"direction" db:"direction"`
	Status    CallStatus `json:"status" db:"status"`

	// DurationSeconds is written only by the child-leg terminal-status path
	// (and forced to zero on voicemail detection).
	DurationSeconds int `json:"duration" db:"duration"`

	// RecordingRef is set by the platform's post-call notification, if any.
	RecordingRef string `json:"recording_ref,omitempty" db:"recording_ref"`

	StartedAt time.Time  `json:"started_at" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

func (d Direction) Valid() bool {
	return d == DirectionOutbound || d == DirectionInbound
}

// CallStatus values follow the platform's status vocabulary, plus the
// locally assigned "voicemail" outcome from answering-machine detection.
type CallStatus string

const (
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusBusy       CallStatus = "busy"
	StatusCanceled   CallStatus = "canceled"
	StatusFailed     CallStatus = "failed"
	StatusVoicemail  CallStatus = "voicemail"
)

// IsTerminal reports whether no further platform status change is expected.
// Voicemail is assigned locally by AMD handling and is not part of the
// platform's terminal set; it manages ended_at on its own path.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusNoAnswer, StatusBusy, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}
