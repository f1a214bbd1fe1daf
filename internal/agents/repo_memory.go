package agents

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
type MemoryRepo struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewMemoryRepo(seed ...Agent) *MemoryRepo {
	r := &MemoryRepo{agents: make(map[string]Agent)}
	for _, a := range seed {
		r.agents[a.ID] = a
	}
	return r
}

func (r *MemoryRepo) Put(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID] = a
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a, nil
	}
	return Agent{}, ErrNotFound
}

func (r *MemoryRepo) GetByEmail(ctx context.Context, email string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Email == email {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

func (r *MemoryRepo) GetByDirectNumber(ctx context.Context, number string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.DirectNumber != "" && a.DirectNumber == number {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

func (r *MemoryRepo) ListActive(ctx context.Context) ([]Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Agent
	for _, a := range r.agents {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}
