package token

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	payload   Payload
	expiresAt time.Time
}

// InMemory implements Store using local memory. Suitable for tests and
// single-process deployments; replicated deployments need the Redis backend.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFunc func() time.Time
}

// NewInMemory returns a new in-memory token store.
func NewInMemory() *InMemory {
	return &InMemory{
		entries: make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
}

func (m *InMemory) Generate(_ context.Context, p Payload, ttl time.Duration) (string, error) {
	now := m.nowFunc().UTC()
	p.ID = uuid.NewString()
	p.ValidUntil = now.Add(ttl)

	m.mu.Lock()
	m.entries[p.ID] = memoryEntry{payload: p, expiresAt: now.Add(ttl)}
	m.mu.Unlock()
	return p.ID, nil
}

func (m *InMemory) Consume(_ context.Context, id string) (*Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.entries, id)
	if m.nowFunc().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	p := e.payload
	return &p, nil
}

func (m *InMemory) Peek(_ context.Context, id string) (*Payload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || m.nowFunc().After(e.expiresAt) {
		return nil, ErrNotFound
	}
	p := e.payload
	return &p, nil
}
