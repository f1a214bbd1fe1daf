package calls

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("calls: not found")
	ErrDuplicate = errors.New("calls: call_id already logged")
	ErrInvalid   = errors.New("calls: invalid record")
)

// Patch carries optional mutations; nil fields are left untouched
// (COALESCE semantics).
type Patch struct {
	Status   *CallStatus
	Duration *int
}

// Store is the call record store contract.
//
// Update semantics shared by all mutating paths:
//   - nil patch fields never overwrite stored values
//   - a stored "voicemail" status is never overwritten (AMD outcome wins)
//   - ended_at is set when the incoming status is terminal and ended_at is
//     still unset, so replayed callbacks do not move it
//
// SetDuration is the only path that writes a nonzero duration; it targets the
// parent record using the child leg's authoritative figure.
type Store interface {
	Create(ctx context.Context, rec CallRecord) (CallRecord, error)

	// Update is the agent-scoped mutation used by the REST API.
	Update(ctx context.Context, callID, agentID string, p Patch) (CallRecord, error)

	// UpdateByProvider is the unscoped mutation used by webhook handlers,
	// which know only the platform call id.
	UpdateByProvider(ctx context.Context, callID string, p Patch) (CallRecord, error)

	// SetDuration writes the authoritative PSTN-leg talk time.
	SetDuration(ctx context.Context, callID string, seconds int) (CallRecord, error)

	// MarkVoicemail sets status=voicemail with duration forced to zero.
	MarkVoicemail(ctx context.Context, callID string) (CallRecord, error)

	GetByCallID(ctx context.Context, callID string) (CallRecord, error)

	// ListForAgent returns the agent's records newest first. direction may be
	// empty to include both directions.
	ListForAgent(ctx context.Context, agentID string, direction Direction, limit int) ([]CallRecord, error)

	Delete(ctx context.Context, callID, agentID string) error

	// CompletedInMonth returns completed calls started within [from, to),
	// the billing aggregation input.
	CompletedInMonth(ctx context.Context, agentID string, from, to time.Time) ([]CallRecord, error)
}

func validateNew(rec CallRecord) error {
	if rec.CallID == "" || rec.AgentID == "" || rec.Counterparty == "" {
		return ErrInvalid
	}
	if !rec.Direction.Valid() {
		return ErrInvalid
	}
	return nil
}
