package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory with the same conditional-update
// semantics as the Postgres implementation. Used by tests and early
// development.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	byCall map[string]*CallRecord

	// Now is injectable for deterministic ended_at/started_at in tests.
	Now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byCall: make(map[string]*CallRecord), Now: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if err := validateNew(rec); err != nil {
		return CallRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCall[rec.CallID]; ok {
		return CallRecord{}, ErrDuplicate
	}

	s.nextID++
	rec.ID = s.nextID
	if rec.Status == "" {
		rec.Status = StatusInitiated
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.Now()
	}
	rec.DurationSeconds = 0
	rec.EndedAt = nil

	stored := rec
	s.byCall[rec.CallID] = &stored
	return rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, callID, agentID string, p Patch) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCall[callID]
	if !ok || rec.AgentID != agentID {
		return CallRecord{}, ErrNotFound
	}
	s.apply(rec, p)
	return *rec, nil
}

func (s *MemoryStore) UpdateByProvider(ctx context.Context, callID string, p Patch) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCall[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	s.apply(rec, p)
	return *rec, nil
}

func (s *MemoryStore) apply(rec *CallRecord, p Patch) {
	if p.Status != nil && rec.Status != StatusVoicemail {
		rec.Status = *p.Status
	}
	if p.Duration != nil {
		rec.DurationSeconds = *p.Duration
	}
	if p.Status != nil && p.Status.IsTerminal() && rec.EndedAt == nil {
		t := s.Now()
		rec.EndedAt = &t
	}
}

func (s *MemoryStore) SetDuration(ctx context.Context, callID string, seconds int) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCall[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	if seconds < 0 {
		seconds = 0
	}
	rec.DurationSeconds = seconds
	return *rec, nil
}

func (s *MemoryStore) MarkVoicemail(ctx context.Context, callID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCall[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	rec.Status = StatusVoicemail
	rec.DurationSeconds = 0
	if rec.EndedAt == nil {
		t := s.Now()
		rec.EndedAt = &t
	}
	return *rec, nil
}

func (s *MemoryStore) GetByCallID(ctx context.Context, callID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCall[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) ListForAgent(ctx context.Context, agentID string, direction Direction, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []CallRecord
	for _, rec := range s.byCall {
		if rec.AgentID != agentID {
			continue
		}
		if direction != "" && rec.Direction != direction {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, callID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byCall[callID]
	if !ok || rec.AgentID != agentID {
		return ErrNotFound
	}
	delete(s.byCall, callID)
	return nil
}

func (s *MemoryStore) CompletedInMonth(ctx context.Context, agentID string, from, to time.Time) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []CallRecord
	for _, rec := range s.byCall {
		if rec.AgentID != agentID || rec.Status != StatusCompleted {
			continue
		}
		if rec.StartedAt.Before(from) || !rec.StartedAt.Before(to) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
