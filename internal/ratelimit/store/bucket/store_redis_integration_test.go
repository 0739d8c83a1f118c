//go:build integration

package bucket

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voteboard/pkg/testutil/containers"
)

func TestRedisBucketStoreAgainstRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	store := NewRedis(rc.Client)
	ctx := context.Background()

	t.Run("boundary", func(t *testing.T) {
		rc.Reset(t)
		for i := 1; i <= testLimit; i++ {
			result, err := store.Allow(ctx, "rl:user:42", testLimit, testWindow)
			require.NoError(t, err)
			assert.True(t, result.Allowed, "request %d", i)
		}
		result, err := store.Allow(ctx, "rl:user:42", testLimit, testWindow)
		require.NoError(t, err)
		assert.False(t, result.Allowed)
		assert.Positive(t, result.RetryAfter)
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		rc.Reset(t)
		const callers = 40
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := store.Allow(ctx, "rl:ip:198.51.100.4", testLimit, testWindow)
				if !assert.NoError(t, err, fmt.Sprintf("caller %d", i)) {
					return
				}
				if result.Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, testLimit, allowed)

		count, err := store.GetCurrentCount(ctx, "rl:ip:198.51.100.4")
		require.NoError(t, err)
		assert.Equal(t, callers, count)
	})
}
