package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	store *RedisBucketStore
	ctx   context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.store = NewRedis(client)
	s.ctx = context.Background()
}

func (s *RedisBucketStoreSuite) TestBoundary() {
	key := "rl:user:42"
	for i := 1; i <= testLimit; i++ {
		result, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
		s.Require().NoError(err)
		s.True(result.Allowed, "request %d should be allowed", i)
		s.Equal(testLimit-i, result.Remaining)
	}

	result, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Positive(result.RetryAfter)
	s.LessOrEqual(result.RetryAfter, 60)

	count, err := s.store.GetCurrentCount(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(testLimit+1, count, "denied attempt is still counted")
}

func (s *RedisBucketStoreSuite) TestWindowSetOnce() {
	key := "rl:ip:203.0.113.7"
	_, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
	s.Require().NoError(err)

	s.mr.FastForward(30 * time.Second)
	_, err = s.store.Allow(s.ctx, key, testLimit, testWindow)
	s.Require().NoError(err)

	// second hit must not extend the window
	s.InDelta(30*time.Second, s.mr.TTL(key), float64(time.Second))
}

func (s *RedisBucketStoreSuite) TestExpiryResetsCounter() {
	key := "rl:user:7"
	for range testLimit + 1 {
		_, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
		s.Require().NoError(err)
	}

	s.mr.FastForward(testWindow)

	result, err := s.store.Allow(s.ctx, key, testLimit, testWindow)
	s.Require().NoError(err)
	s.True(result.Allowed)
	s.Equal(testLimit-1, result.Remaining)
}

func (s *RedisBucketStoreSuite) TestBackendDown() {
	s.mr.Close()
	_, err := s.store.Allow(s.ctx, "rl:user:1", testLimit, testWindow)
	s.Error(err)
}
