// Package models holds the vote domain types: ballots, stored votes, the
// computed board and its wire shapes.
package models

import (
	"time"

	rlmodels "voteboard/internal/ratelimit/models"
)

// Direction is the sign of a vote.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// IsValid checks if the direction is one of the supported enum values.
func (d Direction) IsValid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Outcome describes what a toggle did to the caller's vote.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeRetracted Outcome = "retracted"
	OutcomeChanged   Outcome = "changed"
)

type Project struct {
	ID        int64
	Handle    string
	Name      string
	CreatedAt time.Time
}

// Vote is the single vote a user holds on a project. RoleID and RoleName are
// captured when the vote is cast or changed.
type Vote struct {
	UserID    string
	ProjectID int64
	Direction Direction
	RoleID    string
	RoleName  string
	UpdatedAt time.Time
}

// Ballot is a verified, role-resolved vote ready for the store.
type Ballot struct {
	UserID      string
	Handle      string
	ProjectName string
	Direction   Direction
	RoleID      string
	RoleName    string
	// At stamps the vote (and a project it creates). Stores use their own
	// clock when zero.
	At time.Time
}

// ProjectVotes is a project with every vote currently held on it.
type ProjectVotes struct {
	Project Project
	Votes   []Vote
}

// Snapshot is the post-write state of the project a ballot touched.
type Snapshot struct {
	ProjectVotes
	Outcome Outcome
}

// RateLimitError identifies the budget that rejected a submission. It is
// wrapped in a rate_limited domain error so the transport can set headers.
type RateLimitError struct {
	Scope  string
	Result *rlmodels.RateLimitResult
}

func (e *RateLimitError) Error() string {
	return e.Scope + " rate limit exceeded"
}
