package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"voteboard/internal/vote/models"
)

const keyPrefix = "vb:board:"

// putScript stores ARGV[2] under KEYS[2] only while KEYS[1] (the generation)
// still equals ARGV[1].
var putScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

type redisEntry struct {
	Generation uint64        `json:"generation"`
	Board      *models.Board `json:"board"`
}

// RedisCache shares boards and generations across instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func generationKey(key string) string { return keyPrefix + "gen:" + key }
func entryKey(key string) string      { return keyPrefix + "entry:" + key }

func (c *RedisCache) Get(ctx context.Context, key string) (*models.Board, uint64, bool, error) {
	// one MGET reads both keys atomically
	vals, err := c.client.MGet(ctx, generationKey(key), entryKey(key)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("read board cache: %w", err)
	}

	var gen uint64
	if s, ok := vals[0].(string); ok {
		gen, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, 0, false, fmt.Errorf("parse board generation: %w", err)
		}
	}

	raw, ok := vals[1].(string)
	if !ok {
		return nil, gen, false, nil
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, gen, false, fmt.Errorf("decode cached board: %w", err)
	}
	if e.Generation != gen || e.Board == nil {
		return nil, gen, false, nil
	}
	return e.Board, gen, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, board *models.Board, generation uint64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("cache ttl must be positive")
	}
	payload, err := json.Marshal(redisEntry{Generation: generation, Board: board})
	if err != nil {
		return false, fmt.Errorf("encode board: %w", err)
	}
	stored, err := putScript.Run(ctx, c.client,
		[]string{generationKey(key), entryKey(key)},
		generation, payload, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("write board cache: %w", err)
	}
	return stored == 1, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(key))
		pipe.Del(ctx, entryKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate board cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
