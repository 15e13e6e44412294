package audit

import (
	"context"
	"sort"
	"sync"
)

// Store persists security events.
type Store interface {
	SaveEvent(ctx context.Context, e *SecurityEvent) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]*SecurityEvent, error)
	// All returns every event, oldest first.
	All(ctx context.Context) ([]*SecurityEvent, error)
}

// MemoryStore is an in-memory Store for tests and single-process development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*SecurityEvent
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveEvent implements Store.
func (s *MemoryStore) SaveEvent(_ context.Context, e *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

// Recent implements Store.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SecurityEvent, 0, len(s.events))
	for i := len(s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *s.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context) ([]*SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SecurityEvent, len(s.events))
	for i, e := range s.events {
		cp := *e
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// CountByType returns how many stored events carry the given type.
func (s *MemoryStore) CountByType(typ EventType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}
