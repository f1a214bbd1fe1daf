package dialer

import (
	"context"

	"dialdesk/internal/calls"
)

// Session is the telephony session layer the controller drives. It hides the
// underlying device SDK; the controller never touches media or signaling
// directly. The session enforces single-call-per-agent capacity, so a second
// inbound call while one is in flight never reaches the controller.
type Session interface {
	// Connect starts an outbound call to the given number. The returned
	// ActiveCall may not have a platform call id yet; it arrives with the
	// ringing event.
	Connect(ctx context.Context, number string) (ActiveCall, error)
}

// ActiveCall is one live session call leg.
type ActiveCall interface {
	// SID returns the platform call id, or empty until assigned.
	SID() string

	Accept()
	Reject()
	Disconnect()
	Mute(on bool)
	SendDigits(digits string)
}

// Recorder persists call attempts and terminal outcomes. Implementations talk
// to the call record API; failures are logged and never block call handling.
type Recorder interface {
	// LogCall records a call attempt once the platform call id is known.
	// Duplicate call ids are treated as success.
	LogCall(ctx context.Context, rec calls.CallRecord) error

	// UpdateStatus issues the best-effort terminal status update. No duration
	// is sent: duration is server-authoritative.
	UpdateStatus(ctx context.Context, callID string, status calls.CallStatus) error
}
