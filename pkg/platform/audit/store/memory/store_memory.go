// Package memory keeps the most recent audit events in a bounded ring.
package memory

import (
	"context"
	"sync"

	audit "voteboard/pkg/platform/audit"
)

const defaultCapacity = 10000

// InMemoryStore is a bounded, thread-safe event ring. When full, the oldest
// events are dropped to make room for new ones.
type InMemoryStore struct {
	mu       sync.RWMutex
	events   []audit.Event
	head     int // next write position
	count    int
	capacity int
	dropped  int64
}

func NewInMemoryStore(capacity int) *InMemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &InMemoryStore{
		events:   make([]audit.Event, capacity),
		capacity: capacity,
	}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == s.capacity {
		s.dropped++
	} else {
		s.count++
	}
	s.events[s.head] = event
	s.head = (s.head + 1) % s.capacity
	return nil
}

// ListRecent returns up to limit events, oldest first. limit <= 0 returns all.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]audit.Event, n)
	start := (s.head - n + s.capacity) % s.capacity
	for i := range n {
		out[i] = s.events[(start+i)%s.capacity]
	}
	return out, nil
}

// ListByUser returns every retained event for userID, oldest first.
func (s *InMemoryStore) ListByUser(ctx context.Context, userID string) ([]audit.Event, error) {
	all, _ := s.ListRecent(ctx, 0)
	var out []audit.Event
	for _, e := range all {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Dropped returns the number of events evicted by newer ones.
func (s *InMemoryStore) Dropped() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make([]audit.Event, s.capacity)
	s.head, s.count, s.dropped = 0, 0, 0
}
