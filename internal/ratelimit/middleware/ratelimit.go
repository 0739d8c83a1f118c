// Package middleware applies request budgets at the HTTP boundary.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"voteboard/internal/ratelimit/models"
	dErrors "voteboard/pkg/domain-errors"
	"voteboard/pkg/platform/httputil"
	"voteboard/pkg/requestcontext"
)

// RateLimiter is the subset of the ratelimit service the middleware needs.
type RateLimiter interface {
	CheckRead(ctx context.Context, ip string) *models.RateLimitResult
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimitRead enforces the per-IP read budget. The client IP must already be
// in the request context (metadata.ClientMetadata).
func (m *Middleware) RateLimitRead(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		result := m.limiter.CheckRead(ctx, requestcontext.ClientIP(ctx))

		AddRateLimitHeaders(w, result)

		if !result.Allowed {
			httputil.WriteError(w, dErrors.NewRateLimited("too many requests, try again later", result.RetryAfter))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AddRateLimitHeaders sets X-RateLimit-Limit, -Remaining and -Reset.
func AddRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
