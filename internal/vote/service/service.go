// Package service orchestrates vote submission and aggregate reads.
//
// A submission passes, in order: the IP budget, session decoding, the user
// budget, input validation, live identity checks, role resolution, the store
// transaction and cache invalidation. The first failing step ends the request
// and nothing is written.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	identity "voteboard/internal/identity/models"
	rlmodels "voteboard/internal/ratelimit/models"
	"voteboard/internal/vote/metrics"
	"voteboard/internal/vote/models"
	"voteboard/internal/vote/ports"
	dErrors "voteboard/pkg/domain-errors"
	"voteboard/pkg/platform/audit"
	"voteboard/pkg/platform/privacy"
	"voteboard/pkg/platform/sentinel"
	"voteboard/pkg/requestcontext"
)

// BoardKey is the single cache key covering the whole listing.
const BoardKey = "board"

const (
	defaultCacheTTL    = 5 * time.Minute
	defaultFillTimeout = 10 * time.Second
)

var tracer = otel.Tracer("voteboard/vote/service")

// SubmitInput is everything the transport knows about a submission. A nil
// Request means the body could not be decoded.
type SubmitInput struct {
	ClientIP     string
	SessionToken string
	Request      *models.VoteRequest
}

type SubmitResult struct {
	Response models.SubmitResponse
	// RateLimit is the user budget after this submission.
	RateLimit *rlmodels.RateLimitResult
}

type BoardResult struct {
	Response models.BoardResponse
	CacheHit bool
}

type Service struct {
	store          ports.Store
	cache          ports.Cache
	limiter        ports.RateLimiter
	verifier       ports.Verifier
	sessions       ports.SessionDecoder
	roles          ports.RoleResolver
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	cacheTTL       time.Duration
	fillTimeout    time.Duration
	now            func() time.Time

	fills singleflight.Group
	// set when an invalidation failed; reads bypass the cache until a later
	// invalidation succeeds
	cacheSuspect atomic.Bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithFillTimeout bounds a shared board recompute, which outlives the request
// that started it.
func WithFillTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fillTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	store ports.Store,
	cache ports.Cache,
	limiter ports.RateLimiter,
	verifier ports.Verifier,
	sessions ports.SessionDecoder,
	roles ports.RoleResolver,
	opts ...Option,
) (*Service, error) {
	if store == nil || cache == nil || limiter == nil || verifier == nil || sessions == nil || roles == nil {
		return nil, errors.New("store, cache, limiter, verifier, session decoder and role resolver are required")
	}
	s := &Service{
		store:       store,
		cache:       cache,
		limiter:     limiter,
		verifier:    verifier,
		sessions:    sessions,
		roles:       roles,
		logger:      slog.Default(),
		cacheTTL:    defaultCacheTTL,
		fillTimeout: defaultFillTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit toggles the caller's vote and returns the post-write project state.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "vote.Submit")
	defer span.End()

	result, err := s.submit(ctx, in)
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.RecordRejection(string(code))
		span.SetStatus(codes.Error, string(code))
		if code == dErrors.CodeInternal {
			span.RecordError(err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("vote.outcome", string(result.Response.Outcome)))
	return result, nil
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if res := s.limiter.CheckIP(ctx, in.ClientIP); !res.Allowed {
		return nil, rateLimited(rlmodels.ScopeIP, res)
	}

	candidate, err := s.verifier.Decode(ctx, in.SessionToken)
	if err != nil {
		return nil, err
	}

	userBudget := s.limiter.CheckUser(ctx, candidate.UserID)
	if !userBudget.Allowed {
		return nil, rateLimited(rlmodels.ScopeUser, userBudget)
	}

	cmd, err := in.Request.Validate()
	if err != nil {
		return nil, err
	}
	if cmd.UserID != candidate.UserID {
		s.audit(ctx, audit.Event{
			Action:   string(audit.EventAuthFailed),
			UserID:   candidate.UserID,
			Decision: "denied",
			Reason:   string(identity.ReasonIdentityMismatch),
			IP:       privacy.AnonymizeIP(in.ClientIP),
		}, "claimed_user_id", cmd.UserID)
		return nil, dErrors.Wrap(&identity.AuthError{Reason: identity.ReasonIdentityMismatch},
			dErrors.CodeUnauthorized, "not authenticated")
	}

	caller, err := s.verifier.Confirm(ctx, candidate)
	if err != nil {
		return nil, err
	}

	role, ok := s.roles.HighestRole(caller.RoleIDs)
	if !ok {
		s.audit(ctx, audit.Event{
			Action:   string(audit.EventRoleDenied),
			UserID:   caller.UserID,
			Subject:  cmd.Handle,
			Decision: "denied",
			Reason:   "no_recognized_role",
		})
		return nil, dErrors.New(dErrors.CodeForbidden, "a community role is required to vote")
	}

	snapshot, err := s.store.SubmitVote(ctx, models.Ballot{
		UserID:      caller.UserID,
		Handle:      cmd.Handle,
		ProjectName: cmd.ProjectName,
		Direction:   cmd.Direction,
		RoleID:      role.ID,
		RoleName:    role.Name,
		At:          requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, s.storeError(ctx, err)
	}

	s.invalidate(ctx)
	s.metrics.RecordSubmission(string(snapshot.Outcome))
	s.audit(ctx, audit.Event{
		Action:   string(outcomeEvent(snapshot.Outcome)),
		UserID:   caller.UserID,
		Subject:  cmd.Handle,
		Decision: string(cmd.Direction),
		Role:     role.Name,
	})

	return &SubmitResult{
		Response: models.SubmitResponse{
			ProjectResponse: models.Tally(snapshot.ProjectVotes).View(caller.UserID),
			Outcome:         snapshot.Outcome,
		},
		RateLimit: userBudget,
	}, nil
}

// Board returns the aggregate of every project. A session that fails to
// decode reads anonymously; reads never contact the identity provider.
func (s *Service) Board(ctx context.Context, sessionToken string) (*BoardResult, error) {
	ctx, span := tracer.Start(ctx, "vote.Board")
	defer span.End()

	var userID string
	if sessionToken != "" {
		if candidate, err := s.sessions.Decode(sessionToken); err == nil {
			userID = candidate.UserID
		} else {
			s.logger.DebugContext(ctx, "ignoring undecodable session on read", "error", err)
		}
	}

	board, hit, err := s.loadBoard(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "load board")
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	return &BoardResult{Response: board.View(userID), CacheHit: hit}, nil
}

func (s *Service) loadBoard(ctx context.Context) (*models.Board, bool, error) {
	if s.cacheSuspect.Load() {
		if err := s.cache.Invalidate(ctx, BoardKey); err != nil {
			s.cacheFailure(ctx, "board cache still failing, reading uncached", err)
			board, err := s.recompute(ctx)
			return board, false, err
		}
		s.cacheSuspect.Store(false)
	}

	board, gen, hit, err := s.cache.Get(ctx, BoardKey)
	if err != nil {
		s.cacheFailure(ctx, "board cache read failed, reading uncached", err)
		board, err := s.recompute(ctx)
		return board, false, err
	}
	if hit {
		s.metrics.RecordCacheLookup("hit")
		return board, true, nil
	}
	s.metrics.RecordCacheLookup("miss")

	// Misses of the same generation share one recompute. The fill is detached
	// from any single reader so one cancelled request cannot fail the others.
	ch := s.fills.DoChan(fmt.Sprintf("%s@%d", BoardKey, gen), func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fillTimeout)
		defer cancel()
		board, err := s.recompute(fillCtx)
		if err != nil {
			return nil, err
		}
		stored, err := s.cache.Put(fillCtx, BoardKey, board, gen, s.cacheTTL)
		switch {
		case err != nil:
			s.cacheFailure(fillCtx, "board cache write failed", err)
		case !stored:
			s.metrics.IncrementDiscardedFills()
		}
		return board, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*models.Board), false, nil
	case <-ctx.Done():
		return nil, false, s.storeError(ctx, ctx.Err())
	}
}

func (s *Service) recompute(ctx context.Context) (*models.Board, error) {
	start := time.Now()
	projects, err := s.store.ListProjectVotes(ctx)
	if err != nil {
		return nil, s.storeError(ctx, err)
	}
	board := models.BuildBoard(projects, s.now())
	s.metrics.ObserveRecompute(time.Since(start).Seconds())
	return &board, nil
}

// invalidate runs after a committed write. On failure later reads bypass the
// cache until an invalidation succeeds.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, BoardKey); err != nil {
		s.cacheSuspect.Store(true)
		s.cacheFailure(ctx, "board cache invalidation failed", err)
	}
}

func (s *Service) cacheFailure(ctx context.Context, msg string, err error) {
	s.metrics.IncrementCacheErrors()
	s.logger.WarnContext(ctx, msg, "error", err)
}

func (s *Service) storeError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		s.logger.WarnContext(ctx, "vote toggle kept conflicting", "error", err)
		return dErrors.Wrap(err, dErrors.CodeConflict, "vote conflicted with a concurrent update, please retry")
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		s.logger.ErrorContext(ctx, "vote store unavailable", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "vote store unavailable")
	default:
		s.logger.ErrorContext(ctx, "vote store failed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}

func (s *Service) audit(ctx context.Context, event audit.Event, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	event.RequestID = requestID
	args := append(attrs,
		"event", event.Action,
		"log_type", "audit",
		"user_id", event.UserID,
	)
	if event.Subject != "" {
		args = append(args, "project", event.Subject)
	}
	if requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, event.Action, args...)

	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}

func outcomeEvent(o models.Outcome) audit.AuditEvent {
	switch o {
	case models.OutcomeRetracted:
		return audit.EventVoteRetracted
	case models.OutcomeChanged:
		return audit.EventVoteChanged
	default:
		return audit.EventVoteCast
	}
}

func rateLimited(scope rlmodels.Scope, res *rlmodels.RateLimitResult) error {
	return &dErrors.Error{
		Code:       dErrors.CodeRateLimited,
		Message:    "too many requests, try again later",
		RetryAfter: res.RetryAfter,
		Err:        &models.RateLimitError{Scope: string(scope), Result: res},
	}
}
