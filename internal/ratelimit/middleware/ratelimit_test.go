package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voteboard/internal/ratelimit/models"
	"voteboard/pkg/requestcontext"
	"voteboard/pkg/testutil"
)

type stubLimiter struct {
	result *models.RateLimitResult
	seenIP string
}

func (s *stubLimiter) CheckRead(_ context.Context, ip string) *models.RateLimitResult {
	s.seenIP = ip
	return s.result
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitRead(t *testing.T) {
	reset := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

	t.Run("allowed request passes with headers", func(t *testing.T) {
		limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: true, Limit: 300, Remaining: 299, ResetAt: reset}}
		mw := New(limiter, slog.Default())

		req := httptest.NewRequest(http.MethodGet, "/api/votes", nil)
		req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), "203.0.113.7", ""))
		rr := testutil.DoRequest(mw.RateLimitRead(okHandler()), req)

		testutil.AssertStatusOK(t, rr)
		assert.Equal(t, "203.0.113.7", limiter.seenIP)
		assert.Equal(t, "300", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "299", rr.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "1772359500", rr.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("denied request gets 429 with retry after", func(t *testing.T) {
		limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: false, Limit: 300, ResetAt: reset, RetryAfter: 42}}
		mw := New(limiter, slog.Default())

		rr := testutil.DoRequest(mw.RateLimitRead(okHandler()), httptest.NewRequest(http.MethodGet, "/api/votes", nil))

		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
		assert.Equal(t, "42", rr.Header().Get("Retry-After"))
	})

	t.Run("disabled skips the limiter", func(t *testing.T) {
		limiter := &stubLimiter{}
		mw := New(limiter, slog.Default(), WithDisabled(true))
		rr := testutil.DoRequest(mw.RateLimitRead(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))
		testutil.AssertStatusOK(t, rr)
	})
}
