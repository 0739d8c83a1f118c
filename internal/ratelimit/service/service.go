// Package service enforces the per-IP, per-user and read request budgets.
//
// Checks never fail: when the primary bucket store errors, the failure is
// logged, counted against a circuit breaker, and the request is judged by an
// in-process fallback store instead. While the breaker is open the primary is
// only probed once per cooldown.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"voteboard/internal/ratelimit/metrics"
	"voteboard/internal/ratelimit/models"
	"voteboard/internal/ratelimit/ports"
	"voteboard/internal/ratelimit/store/bucket"
	"voteboard/pkg/platform/audit"
	"voteboard/pkg/platform/circuit"
	"voteboard/pkg/platform/privacy"
)

// Type aliases for interfaces from ports package.
type (
	BucketStore    = ports.BucketStore
	AuditPublisher = ports.AuditPublisher
)

// Limits holds one budget per scope.
type Limits struct {
	IP   models.Limit
	User models.Limit
	Read models.Limit
}

// DefaultLimits: 100 submissions per IP and 15 per user every 5 minutes,
// 300 reads per IP.
func DefaultLimits() Limits {
	return Limits{
		IP:   models.Limit{Requests: 100, Window: 5 * time.Minute},
		User: models.Limit{Requests: 15, Window: 5 * time.Minute},
		Read: models.Limit{Requests: 300, Window: 5 * time.Minute},
	}
}

type Service struct {
	primary        BucketStore
	fallback       *bucket.InMemoryBucketStore
	inProcess      bool // primary is itself the in-memory store
	breaker        *circuit.Breaker
	limits         Limits
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLimits(limits Limits) Option {
	return func(s *Service) {
		s.limits = limits
	}
}

// WithBreaker replaces the default bucket store breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

// WithFallback replaces the in-memory store used while the primary is failing.
func WithFallback(store *bucket.InMemoryBucketStore) Option {
	return func(s *Service) {
		s.fallback = store
	}
}

func New(primary BucketStore, opts ...Option) (*Service, error) {
	if primary == nil {
		return nil, errors.New("bucket store is required")
	}
	svc := &Service{
		primary: primary,
		limits:  DefaultLimits(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if mem, ok := primary.(*bucket.InMemoryBucketStore); ok {
		svc.fallback = mem
		svc.inProcess = true
	}
	if svc.fallback == nil {
		svc.fallback = bucket.New()
	}
	if svc.breaker == nil {
		svc.breaker = circuit.New("ratelimit-buckets")
	}
	for scope, l := range map[models.Scope]models.Limit{models.ScopeIP: svc.limits.IP, models.ScopeUser: svc.limits.User, models.ScopeRead: svc.limits.Read} {
		if l.Requests <= 0 || l.Window <= 0 {
			return nil, errors.New("rate limit for scope " + string(scope) + " must be positive")
		}
	}
	return svc, nil
}

// CheckIP counts a vote submission against the client IP budget.
func (s *Service) CheckIP(ctx context.Context, ip string) *models.RateLimitResult {
	return s.check(ctx, models.ScopeIP, ip, s.limits.IP)
}

// CheckUser counts a vote submission against the session user's budget.
func (s *Service) CheckUser(ctx context.Context, userID string) *models.RateLimitResult {
	return s.check(ctx, models.ScopeUser, userID, s.limits.User)
}

// CheckRead counts an aggregate read against the client IP read budget.
func (s *Service) CheckRead(ctx context.Context, ip string) *models.RateLimitResult {
	return s.check(ctx, models.ScopeRead, ip, s.limits.Read)
}

func (s *Service) check(ctx context.Context, scope models.Scope, identifier string, limit models.Limit) *models.RateLimitResult {
	key := models.NewRateLimitKey(scope, identifier)
	result := s.allow(ctx, key, limit)
	s.metrics.RecordCheck(string(scope), result.Allowed)

	if !result.Allowed {
		event := audit.Event{
			Action: string(audit.EventRateLimitExceeded),
			Reason: string(scope) + "_limit",
		}
		logIdentifier := identifier
		if scope == models.ScopeUser {
			event.UserID = identifier
		} else {
			logIdentifier = privacy.AnonymizeIP(identifier)
			event.IP = logIdentifier
		}
		ports.LogAudit(ctx, s.logger, s.auditPublisher, event,
			"identifier", logIdentifier,
			"scope", scope,
			"limit", limit.Requests,
			"window_seconds", int(limit.Window.Seconds()),
		)
	}
	return result
}

func (s *Service) allow(ctx context.Context, key string, limit models.Limit) *models.RateLimitResult {
	if s.inProcess || !s.breaker.Allow() {
		return s.allowFallback(ctx, key, limit)
	}

	result, err := s.primary.Allow(ctx, key, limit.Requests, limit.Window)
	if err != nil {
		s.metrics.IncrementBackendErrors()
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.metrics.SetBreakerOpen(true)
			s.logger.ErrorContext(ctx, "rate limit store circuit opened, using in-memory fallback", "error", err)
		} else {
			s.logger.WarnContext(ctx, "rate limit store failed, using in-memory fallback", "error", err)
		}
		return s.allowFallback(ctx, key, limit)
	}

	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetBreakerOpen(false)
		s.logger.InfoContext(ctx, "rate limit store circuit closed")
	}
	return result
}

func (s *Service) allowFallback(ctx context.Context, key string, limit models.Limit) *models.RateLimitResult {
	if !s.inProcess {
		s.metrics.IncrementFallback()
	}
	// the in-memory store never errors
	result, _ := s.fallback.Allow(ctx, key, limit.Requests, limit.Window)
	return result
}

// Sweep evicts expired counters from the fallback store and, when it keeps
// its own counters, the primary store.
func (s *Service) Sweep(ctx context.Context) int {
	removed, _ := s.fallback.Sweep(ctx)
	if sweeper, ok := s.primary.(ports.Sweeper); ok && !s.inProcess {
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "rate limit sweep failed", "error", err)
		}
		removed += n
	}
	s.metrics.AddSwept(removed)
	return removed
}

// RunSweeper sweeps every interval until ctx is cancelled. It returns nil on
// cancellation so it can run under an errgroup.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if removed := s.Sweep(ctx); removed > 0 {
				s.logger.DebugContext(ctx, "rate limit counters swept", "removed", removed)
			}
		}
	}
}
