package bucket

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"voteboard/internal/ratelimit/models"
)

// numShards spreads keys over independent locks so unrelated subjects never
// contend.
const numShards = 64

// InMemoryBucketStore implements fixed window counters in process memory.
// Counters are created lazily, reset when their window expires and removed
// by Sweep.
type InMemoryBucketStore struct {
	shards [numShards]shard
	now    func() time.Time
}

type shard struct {
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count     int
	expiresAt time.Time
}

type Option func(*InMemoryBucketStore)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		s.now = now
	}
}

// New creates an empty in-memory bucket store.
func New(opts ...Option) *InMemoryBucketStore {
	s := &InMemoryBucketStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].counters = make(map[string]*counter)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow increments the counter for key and reports whether the request fits
// in the window. A denied request is still counted.
func (s *InMemoryBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

// AllowN is Allow with a custom cost.
func (s *InMemoryBucketStore) AllowN(_ context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	sh := s.shardFor(key)

	sh.mu.Lock()
	c := sh.counters[key]
	if c == nil || !now.Before(c.expiresAt) {
		c = &counter{expiresAt: now.Add(window)}
		sh.counters[key] = c
	}
	c.count += cost
	count, expiresAt := c.count, c.expiresAt
	sh.mu.Unlock()

	return models.NewResult(count, limit, expiresAt, now), nil
}

// GetCurrentCount returns the live count for key, or zero when expired.
func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string) (int, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c := sh.counters[key]
	if c == nil || !s.now().Before(c.expiresAt) {
		return 0, nil
	}
	return c.count, nil
}

// Sweep evicts every expired counter and returns how many were removed.
func (s *InMemoryBucketStore) Sweep(_ context.Context) (int, error) {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, c := range sh.counters {
			if !now.Before(c.expiresAt) {
				delete(sh.counters, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked counters, expired or not.
func (s *InMemoryBucketStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.counters)
		sh.mu.Unlock()
	}
	return n
}

// Stats returns the counter total and the per-shard breakdown.
func (s *InMemoryBucketStore) Stats() (int, []int) {
	perShard := make([]int, numShards)
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		perShard[i] = len(sh.counters)
		sh.mu.Unlock()
		total += perShard[i]
	}
	return total, perShard
}

func (s *InMemoryBucketStore) shardFor(key string) *shard {
	return &s.shards[hashKey(key)%numShards]
}

func hashKey(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}
