// Package redis opens the shared go-redis client used by the rate limit
// buckets and the board cache.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"voteboard/internal/platform/config"
)

// Client is the process-wide connection pool.
type Client struct {
	*redis.Client
}

// New dials cfg.URL and verifies the server answers. It returns a nil client
// and no error when cfg.URL is empty, leaving both consumers in process.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	opts.PoolSize, opts.MinIdleConns = cfg.PoolSize, cfg.MinIdleConns
	opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout = cfg.DialTimeout, cfg.ReadTimeout, cfg.WriteTimeout

	c := &Client{Client: redis.NewClient(opts)}
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+opts.ReadTimeout)
	defer cancel()
	if err := c.Health(pingCtx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Health pings the server; it backs the /healthz "redis" check.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}
