package telephony

import (
	"context"
	"sync"
	"time"
)

// LegMap tracks which parent (browser) call a dialed child (PSTN) leg belongs
// to. Entries are created when the child leg first reports status and removed
// when it reaches a terminal state or is AMD-redirected. The TTL bounds how
// long an orphaned entry can survive a missed terminal callback.
type LegMap interface {
	Put(ctx context.Context, childCallID, parentCallID string) error
	Get(ctx context.Context, childCallID string) (string, bool, error)
	Delete(ctx context.Context, childCallID string) error
	Close() error
}

type legEntry struct {
	parent    string
	expiresAt time.Time
}

// MemoryLegMap is a mutex-guarded map with TTL-based cleanup, suitable for a
// single-process deployment. A process restart loses in-flight mappings.
type MemoryLegMap struct {
	mu      sync.RWMutex
	entries map[string]legEntry
	ttl     time.Duration
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryLegMap starts a cleanup goroutine that sweeps expired entries.
func NewMemoryLegMap(ttl time.Duration, cleanupInterval time.Duration) *MemoryLegMap {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	m := &MemoryLegMap{
		entries: make(map[string]legEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go m.cleanupLoop(cleanupInterval)
	return m
}

func (m *MemoryLegMap) Put(ctx context.Context, childCallID, parentCallID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[childCallID] = legEntry{parent: parentCallID, expiresAt: time.Now().Add(m.ttl)}
	return nil
}

func (m *MemoryLegMap) Get(ctx context.Context, childCallID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[childCallID]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false, nil
	}
	return e.parent, true, nil
}

func (m *MemoryLegMap) Delete(ctx context.Context, childCallID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, childCallID)
	return nil
}

func (m *MemoryLegMap) Close() error {
	m.once.Do(func() { close(m.stopCh) })
	return nil
}

func (m *MemoryLegMap) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

func (m *MemoryLegMap) cleanup() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
