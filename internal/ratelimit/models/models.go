package models

import (
	"math"
	"time"
)

// Scope names an independent request budget.
type Scope string

const (
	// ScopeIP budgets vote submissions per client IP. Checked first.
	ScopeIP Scope = "ip"
	// ScopeUser budgets vote submissions per verified session user.
	ScopeUser Scope = "user"
	// ScopeRead budgets aggregate reads per client IP.
	ScopeRead Scope = "read"
)

// Limit is a fixed window budget: at most Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// NewResult derives remaining and retry-after from a counter observation.
func NewResult(count, limit int, resetAt, now time.Time) *RateLimitResult {
	result := &RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = RetryAfterSeconds(resetAt, now)
	}
	return result
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below 1.
func RetryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
