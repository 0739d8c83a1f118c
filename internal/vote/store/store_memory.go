// Package store persists projects and votes and applies the toggle
// transaction that keeps at most one vote per user and project.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"voteboard/internal/vote/models"
)

// InMemoryStore keeps projects and votes in maps under a single mutex, which
// makes every toggle trivially serializable.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	projects map[string]*models.Project       // by handle
	votes    map[int64]map[string]models.Vote // project id -> user id -> vote
	now      func() time.Time
}

type MemoryOption func(*InMemoryStore)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemoryStore(opts ...MemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		projects: make(map[string]*models.Project),
		votes:    make(map[int64]map[string]models.Vote),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) SubmitVote(ctx context.Context, ballot models.Ballot) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ballot.At
	if now.IsZero() {
		now = s.now()
	}
	project, ok := s.projects[ballot.Handle]
	if !ok {
		s.nextID++
		name := ballot.ProjectName
		if name == "" {
			name = ballot.Handle
		}
		project = &models.Project{ID: s.nextID, Handle: ballot.Handle, Name: name, CreatedAt: now}
		s.projects[ballot.Handle] = project
		s.votes[project.ID] = make(map[string]models.Vote)
	}

	votes := s.votes[project.ID]
	outcome := toggle(votes, project.ID, ballot, now)

	return &models.Snapshot{
		ProjectVotes: models.ProjectVotes{Project: *project, Votes: sortedVotes(votes)},
		Outcome:      outcome,
	}, nil
}

func toggle(votes map[string]models.Vote, projectID int64, ballot models.Ballot, now time.Time) models.Outcome {
	existing, ok := votes[ballot.UserID]
	switch {
	case !ok:
		votes[ballot.UserID] = models.Vote{
			UserID:    ballot.UserID,
			ProjectID: projectID,
			Direction: ballot.Direction,
			RoleID:    ballot.RoleID,
			RoleName:  ballot.RoleName,
			UpdatedAt: now,
		}
		return models.OutcomeCreated
	case existing.Direction == ballot.Direction:
		delete(votes, ballot.UserID)
		return models.OutcomeRetracted
	default:
		existing.Direction = ballot.Direction
		existing.RoleID = ballot.RoleID
		existing.RoleName = ballot.RoleName
		existing.UpdatedAt = now
		votes[ballot.UserID] = existing
		return models.OutcomeChanged
	}
}

func (s *InMemoryStore) ListProjectVotes(ctx context.Context) ([]models.ProjectVotes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ProjectVotes, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, models.ProjectVotes{Project: *p, Votes: sortedVotes(s.votes[p.ID])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project.ID < out[j].Project.ID })
	return out, nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func sortedVotes(votes map[string]models.Vote) []models.Vote {
	out := make([]models.Vote, 0, len(votes))
	for _, v := range votes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
