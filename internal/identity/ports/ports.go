// Package ports defines the collaborators the identity verifier consumes.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks SessionDecoder,Provider,Directory,AuditPublisher

import (
	"context"

	"voteboard/internal/identity/models"
	"voteboard/pkg/platform/audit"
)

// SessionDecoder turns a session token into an unverified candidate.
type SessionDecoder interface {
	Decode(token string) (*models.Candidate, error)
}

// Provider performs the live credential check against the identity provider.
type Provider interface {
	CurrentUser(ctx context.Context, accessToken string) (*models.ProviderUser, error)
}

// Directory reads community member records. FindByID returns
// sentinel.ErrNotFound for unknown users.
type Directory interface {
	FindByID(ctx context.Context, userID string) (*models.CommunityUser, error)
}

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
