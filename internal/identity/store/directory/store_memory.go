// Package directory stores community member records: display name and role
// ids per user.
package directory

import (
	"context"
	"sync"
	"time"

	"voteboard/internal/identity/models"
	"voteboard/pkg/platform/sentinel"
)

// InMemoryStore is a process-local directory.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]models.CommunityUser
	now   func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]models.CommunityUser), now: time.Now}
}

func (s *InMemoryStore) FindByID(_ context.Context, userID string) (*models.CommunityUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	user.RoleIDs = append([]string(nil), user.RoleIDs...)
	return &user, nil
}

// Upsert inserts or replaces the record for user.UserID.
func (s *InMemoryStore) Upsert(_ context.Context, user models.CommunityUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.RoleIDs = append([]string(nil), user.RoleIDs...)
	user.UpdatedAt = s.now()
	s.users[user.UserID] = user
	return nil
}

// Ping always succeeds.
func (s *InMemoryStore) Ping(context.Context) error { return nil }
