package models

import (
	"regexp"
	"strings"
	"unicode/utf8"

	dErrors "voteboard/pkg/domain-errors"
)

const maxProjectNameLength = 64

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// VoteRequest is the raw POST /api/votes body.
type VoteRequest struct {
	ProjectHandle string `json:"projectHandle"`
	Direction     string `json:"direction"`
	UserID        string `json:"userId"`
	ProjectName   string `json:"projectName,omitempty"`
}

// VoteCommand is a validated vote request. Downstream code accepts only this.
type VoteCommand struct {
	UserID      string
	Handle      string
	ProjectName string
	Direction   Direction
}

// Validate normalizes and checks the request. A nil request is rejected.
func (r *VoteRequest) Validate() (VoteCommand, error) {
	if r == nil {
		return VoteCommand{}, dErrors.New(dErrors.CodeInvalidInput, "request body is required")
	}

	userID := strings.TrimSpace(r.UserID)
	if userID == "" {
		return VoteCommand{}, dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	}

	handle, err := NormalizeHandle(r.ProjectHandle)
	if err != nil {
		return VoteCommand{}, err
	}

	direction := Direction(strings.ToLower(strings.TrimSpace(r.Direction)))
	if !direction.IsValid() {
		return VoteCommand{}, dErrors.New(dErrors.CodeInvalidInput, "direction must be 'up' or 'down'")
	}

	name := strings.TrimSpace(r.ProjectName)
	if utf8.RuneCountInString(name) > maxProjectNameLength {
		return VoteCommand{}, dErrors.New(dErrors.CodeInvalidInput, "projectName must be at most 64 characters")
	}
	if name == "" {
		name = handle
	}

	return VoteCommand{
		UserID:      userID,
		Handle:      handle,
		ProjectName: name,
		Direction:   direction,
	}, nil
}

// NormalizeHandle trims whitespace and one leading '@', lower-cases, and
// checks the result against ^[a-z0-9_]{1,32}$.
func NormalizeHandle(raw string) (string, error) {
	handle := strings.TrimSpace(raw)
	handle = strings.TrimPrefix(handle, "@")
	handle = strings.ToLower(handle)
	if handle == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "projectHandle is required")
	}
	if !handlePattern.MatchString(handle) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "projectHandle must be 1-32 characters of a-z, 0-9 or _")
	}
	return handle, nil
}
