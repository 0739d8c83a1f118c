// Package ports defines the collaborators the vote service consumes.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks Store,Cache,RateLimiter,Verifier,SessionDecoder,RoleResolver,AuditPublisher

import (
	"context"
	"time"

	identity "voteboard/internal/identity/models"
	rlmodels "voteboard/internal/ratelimit/models"
	"voteboard/internal/vote/models"
	"voteboard/pkg/platform/audit"
)

// Store persists votes. SubmitVote applies the toggle atomically and returns
// the post-write state of the project.
type Store interface {
	SubmitVote(ctx context.Context, ballot models.Ballot) (*models.Snapshot, error)
	ListProjectVotes(ctx context.Context) ([]models.ProjectVotes, error)
	Ping(ctx context.Context) error
}

// Cache holds computed boards. Get reports the generation observed with the
// lookup; Put stores only if that generation is still current.
type Cache interface {
	Get(ctx context.Context, key string) (*models.Board, uint64, bool, error)
	Put(ctx context.Context, key string, board *models.Board, generation uint64, ttl time.Duration) (bool, error)
	Invalidate(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// RateLimiter counts vote submissions per IP and per user.
type RateLimiter interface {
	CheckIP(ctx context.Context, ip string) *rlmodels.RateLimitResult
	CheckUser(ctx context.Context, userID string) *rlmodels.RateLimitResult
}

// Verifier authenticates submitters in two steps.
type Verifier interface {
	Decode(ctx context.Context, token string) (*identity.Candidate, error)
	Confirm(ctx context.Context, candidate *identity.Candidate) (*identity.Caller, error)
}

// SessionDecoder reads the session of an optional reader. No I/O.
type SessionDecoder interface {
	Decode(token string) (*identity.Candidate, error)
}

type RoleResolver interface {
	HighestRole(roleIDs []string) (identity.Role, bool)
}

// AuditPublisher emits audit events for vote mutations and rejections.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
