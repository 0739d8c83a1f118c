// Package models holds the identity types shared by the verifier, the role
// resolver and the community directory.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Candidate is what a decoded session claims about its holder. Nothing in it
// is trusted until Confirm succeeds.
type Candidate struct {
	UserID      string
	DisplayName string
	// ServerIDs lists the community servers the holder belonged to at sign-in.
	ServerIDs []string
	// AccessToken is the identity provider credential checked live on submit.
	AccessToken string
	ExpiresAt   time.Time
}

// HasServer reports whether the candidate claims membership of serverID.
func (c *Candidate) HasServer(serverID string) bool {
	for _, id := range c.ServerIDs {
		if id == serverID {
			return true
		}
	}
	return false
}

// Caller is a fully verified identity.
type Caller struct {
	UserID      string
	DisplayName string
	RoleIDs     []string
}

// Role is one tier of the role table.
type Role struct {
	ID     string
	Name   string
	Weight int
}

// CommunityUser is the local directory record for a community member.
type CommunityUser struct {
	UserID      string
	DisplayName string
	RoleIDs     []string
	UpdatedAt   time.Time
}

// ProviderUser is the identity provider's view of the credential holder.
type ProviderUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// FailureReason says which verification step rejected a caller. It is logged
// and audited, never returned to clients.
type FailureReason string

const (
	ReasonMalformedSession   FailureReason = "malformed_session"
	ReasonInvalidCredential  FailureReason = "invalid_credential"
	ReasonMembershipRequired FailureReason = "membership_required"
	ReasonIdentityMismatch   FailureReason = "identity_mismatch"
)

// AuthError carries the failure reason behind an unauthenticated response.
type AuthError struct {
	Reason FailureReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from err, or "".
func ReasonOf(err error) FailureReason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}
