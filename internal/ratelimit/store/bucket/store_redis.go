package bucket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"voteboard/internal/ratelimit/models"
)

// allowScript increments the counter and starts its window on first use.
// A counter that lost its TTL is given a fresh one so it can never live forever.
var allowScript = redis.NewScript(`
local count = redis.call('INCRBY', KEYS[1], ARGV[2])
if count == tonumber(ARGV[2]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisBucketStore implements fixed window counters shared by every instance.
// Expiry is delegated to Redis TTLs, so Sweep has nothing to do.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

type RedisOption func(*RedisBucketStore)

// WithRedisClock overrides time.Now used to compute reset times.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisBucketStore) {
		s.now = now
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{client: client, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

func (s *RedisBucketStore) AllowN(ctx context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	windowMs := window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}
	raw, err := allowScript.Run(ctx, s.client, []string{key}, windowMs, cost).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis allow %s: %w", key, err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("redis allow %s: unexpected reply length %d", key, len(raw))
	}
	now := s.now()
	resetAt := now.Add(time.Duration(raw[1]) * time.Millisecond)
	return models.NewResult(int(raw[0]), limit, resetAt, now), nil
}

func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string) (int, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}

// Sweep is a no-op: Redis expires counters itself.
func (s *RedisBucketStore) Sweep(context.Context) (int, error) {
	return 0, nil
}
