// Package ports defines the interfaces the ratelimit service consumes.
package ports

import (
	"context"
	"log/slog"
	"time"

	"voteboard/internal/ratelimit/models"
	"voteboard/pkg/platform/audit"
	"voteboard/pkg/requestcontext"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// BucketStore manages fixed window rate limit counters.
type BucketStore interface {
	// Allow counts one request against key and reports whether it fits.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)
}

// Sweeper is implemented by stores that must evict expired counters themselves.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// LogAudit is a shared helper for logging audit events across ratelimit services.
// It logs to both the structured logger and the audit publisher if available.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher AuditPublisher, event audit.Event, attrs ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}

	args := append(attrs, "event", event.Action, "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, event.Action, args...)
	}

	if publisher == nil {
		return
	}
	event.RequestID = requestID
	if err := publisher.Emit(ctx, event); err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
