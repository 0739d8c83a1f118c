// Package cache stores computed boards. Each key carries a generation that
// Invalidate bumps; Put only succeeds for the generation observed by the Get
// that missed, so a fill computed before a write can never be installed after
// it.
package cache

import (
	"context"
	"sync"
	"time"

	"voteboard/internal/vote/models"
)

type entry struct {
	board      *models.Board
	generation uint64
	expiresAt  time.Time
}

type InMemoryCache struct {
	mu          sync.Mutex
	entries     map[string]entry
	generations map[string]uint64
	now         func() time.Time
}

type Option func(*InMemoryCache)

func WithClock(now func() time.Time) Option {
	return func(c *InMemoryCache) { c.now = now }
}

func NewInMemoryCache(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		entries:     make(map[string]entry),
		generations: make(map[string]uint64),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached board and the current generation. The board is
// shared and must not be modified.
func (c *InMemoryCache) Get(_ context.Context, key string) (*models.Board, uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generations[key]
	e, ok := c.entries[key]
	if !ok || e.generation != gen || !c.now().Before(e.expiresAt) {
		return nil, gen, false, nil
	}
	return e.board, gen, true, nil
}

func (c *InMemoryCache) Put(_ context.Context, key string, board *models.Board, generation uint64, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generations[key] != generation {
		return false, nil
	}
	c.entries[key] = entry{board: board, generation: generation, expiresAt: c.now().Add(ttl)}
	return true, nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generations[key]++
	delete(c.entries, key)
	return nil
}

func (c *InMemoryCache) Ping(context.Context) error { return nil }
