package billing

import (
	"context"
	"errors"
	"math"
	"time"

	"dialdesk/internal/calls"
)

var ErrInvalidRequest = errors.New("billing: invalid request")

// Service derives a per-agent billing snapshot from the call record store.
// Snapshots are never persisted; every request recomputes from records.
type Service struct {
	store calls.Store

	// rate is the dollar rate per minute applied to completed talk time.
	rate float64

	clock func() time.Time
}

func NewService(store calls.Store, ratePerMinute float64) *Service {
	return &Service{store: store, rate: ratePerMinute, clock: time.Now}
}

// WithClock overrides the time source (tests).
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Snapshot is the derived monthly usage for one agent.
type Snapshot struct {
	AgentID string `json:"agent_id"`

	// Month is the first day of the covered calendar month, UTC.
	Month time.Time `json:"month"`

	CompletedCalls int     `json:"completed_calls"`
	TotalSeconds   int     `json:"total_seconds"`
	TotalMinutes   float64 `json:"total_minutes"`
	RatePerMinute  float64 `json:"rate_per_minute"`
	Cost           float64 `json:"cost"`
}

// ForAgent sums duration across the agent's completed calls started in the
// current calendar month.
func (s *Service) ForAgent(ctx context.Context, agentID string) (Snapshot, error) {
	if agentID == "" {
		return Snapshot{}, ErrInvalidRequest
	}

	now := s.clock().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	recs, err := s.store.CompletedInMonth(ctx, agentID, monthStart, monthEnd)
	if err != nil {
		return Snapshot{}, err
	}

	out := Snapshot{AgentID: agentID, Month: monthStart, RatePerMinute: s.rate}
	for _, rec := range recs {
		out.CompletedCalls++
		out.TotalSeconds += rec.DurationSeconds
	}
	out.TotalMinutes = round2(float64(out.TotalSeconds) / 60)
	out.Cost = round2(out.TotalMinutes * s.rate)
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
