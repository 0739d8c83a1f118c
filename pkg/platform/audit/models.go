package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers accepted vote mutations; these are the record
	// of who moved a tally.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected requests worth alerting on: rate limit
	// denials, identity failures, missing roles.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers everything else.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names an auditable action.
type AuditEvent string

const (
	// Vote events
	EventVoteCast      AuditEvent = "vote_cast"
	EventVoteChanged   AuditEvent = "vote_changed"
	EventVoteRetracted AuditEvent = "vote_retracted"

	// Rejections
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventAuthFailed        AuditEvent = "auth_failed"
	EventRoleDenied        AuditEvent = "role_denied"

	// Bootstrap
	EventDirectorySeeded AuditEvent = "directory_seeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVoteCast:      CategoryCompliance,
	EventVoteChanged:   CategoryCompliance,
	EventVoteRetracted: CategoryCompliance,

	EventRateLimitExceeded: CategorySecurity,
	EventAuthFailed:        CategorySecurity,
	EventRoleDenied:        CategorySecurity,

	EventDirectorySeeded: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    string        `json:"user_id,omitempty"`
	// Subject is the entity acted upon, usually a project handle.
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Role      string `json:"role,omitempty"`
	IP        string `json:"ip,omitempty"` // anonymized
	RequestID string `json:"request_id,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
