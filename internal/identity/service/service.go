// Package service verifies that a session holder is a live, current member of
// the community before a vote is accepted.
//
// Verification is split in two: Decode only checks the signed session, while
// Confirm performs the provider, membership and directory checks. Every
// rejection is logged and audited with its reason but surfaces to callers as a
// single unauthenticated error.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voteboard/internal/identity/metrics"
	"voteboard/internal/identity/models"
	"voteboard/internal/identity/ports"
	dErrors "voteboard/pkg/domain-errors"
	"voteboard/pkg/platform/audit"
	"voteboard/pkg/platform/privacy"
	"voteboard/pkg/platform/sentinel"
	"voteboard/pkg/requestcontext"
)

var tracer = otel.Tracer("voteboard/identity/service")

type Verifier struct {
	decoder        ports.SessionDecoder
	provider       ports.Provider
	directory      ports.Directory
	serverID       string
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Verifier)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(v *Verifier) { v.auditPublisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// New builds a verifier requiring membership of serverID.
func New(decoder ports.SessionDecoder, provider ports.Provider, directory ports.Directory, serverID string, opts ...Option) (*Verifier, error) {
	if decoder == nil || provider == nil || directory == nil {
		return nil, errors.New("session decoder, provider and directory are required")
	}
	if serverID == "" {
		return nil, errors.New("required server id must be set")
	}
	v := &Verifier{
		decoder:   decoder,
		provider:  provider,
		directory: directory,
		serverID:  serverID,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Decode checks the session signature and shape. It performs no I/O.
func (v *Verifier) Decode(ctx context.Context, token string) (*models.Candidate, error) {
	candidate, err := v.decoder.Decode(token)
	if err != nil {
		return nil, v.reject(ctx, "", models.ReasonMalformedSession, err)
	}
	return candidate, nil
}

// Confirm runs the live checks against the provider and the directory.
func (v *Verifier) Confirm(ctx context.Context, candidate *models.Candidate) (*models.Caller, error) {
	ctx, span := tracer.Start(ctx, "identity.Confirm")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", candidate.UserID))

	caller, err := v.confirm(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	v.metrics.RecordVerification("ok")
	return caller, nil
}

// Verify is Decode followed by Confirm.
func (v *Verifier) Verify(ctx context.Context, token string) (*models.Caller, error) {
	candidate, err := v.Decode(ctx, token)
	if err != nil {
		return nil, err
	}
	return v.Confirm(ctx, candidate)
}

func (v *Verifier) confirm(ctx context.Context, candidate *models.Candidate) (*models.Caller, error) {
	start := time.Now()
	providerUser, err := v.provider.CurrentUser(ctx, candidate.AccessToken)
	v.metrics.ObserveProvider(time.Since(start).Seconds())
	if err != nil {
		// provider outages fail closed
		return nil, v.reject(ctx, candidate.UserID, models.ReasonInvalidCredential, err)
	}
	if providerUser.ID != candidate.UserID {
		return nil, v.reject(ctx, candidate.UserID, models.ReasonIdentityMismatch,
			errors.New("credential belongs to a different provider user"))
	}

	if !candidate.HasServer(v.serverID) {
		return nil, v.reject(ctx, candidate.UserID, models.ReasonMembershipRequired, nil)
	}

	record, err := v.directory.FindByID(ctx, candidate.UserID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, v.reject(ctx, candidate.UserID, models.ReasonIdentityMismatch,
			errors.New("no community record"))
	case err != nil:
		v.metrics.RecordVerification("directory_unavailable")
		v.logger.ErrorContext(ctx, "community directory lookup failed", "user_id", candidate.UserID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "community directory unavailable")
	}
	if record.DisplayName != candidate.DisplayName {
		return nil, v.reject(ctx, candidate.UserID, models.ReasonIdentityMismatch,
			errors.New("display name differs from community record"))
	}

	return &models.Caller{
		UserID:      candidate.UserID,
		DisplayName: candidate.DisplayName,
		RoleIDs:     append([]string(nil), record.RoleIDs...),
	}, nil
}

func (v *Verifier) reject(ctx context.Context, userID string, reason models.FailureReason, cause error) error {
	v.metrics.RecordVerification(string(reason))

	ip := privacy.AnonymizeIP(requestcontext.ClientIP(ctx))
	requestID := requestcontext.RequestID(ctx)
	attrs := []any{
		"event", audit.EventAuthFailed,
		"log_type", "audit",
		"reason", reason,
		"user_id", userID,
		"ip", ip,
	}
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	v.logger.WarnContext(ctx, "caller verification failed", attrs...)

	if v.auditPublisher != nil {
		if err := v.auditPublisher.Emit(ctx, audit.Event{
			Action:    string(audit.EventAuthFailed),
			UserID:    userID,
			Decision:  "denied",
			Reason:    string(reason),
			IP:        ip,
			RequestID: requestID,
		}); err != nil {
			v.logger.WarnContext(ctx, "failed to emit audit event", "event", audit.EventAuthFailed, "error", err)
		}
	}

	return dErrors.Wrap(&models.AuthError{Reason: reason, Err: cause}, dErrors.CodeUnauthorized, "not authenticated")
}
