package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"voteboard/internal/vote/models"
	"voteboard/internal/vote/ports"
	"voteboard/pkg/testutil"
)

func TestInMemoryStoreContract(t *testing.T) {
	suite.Run(t, &StoreContractSuite{newStore: func() ports.Store { return NewInMemoryStore() }})
}

func TestInMemoryStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewInMemoryStore().SubmitVote(ctx, models.Ballot{UserID: "a", Handle: "acme", Direction: models.DirectionUp})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStoreStampsVotes(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := first
	s := NewInMemoryStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	testutil.Given(t, "an up vote cast at noon", func(t *testing.T) {
		snap, err := s.SubmitVote(ctx, models.Ballot{UserID: "a", Handle: "acme", Direction: models.DirectionUp, RoleID: "r1", RoleName: "MiniETH"})
		require.NoError(t, err)
		require.Len(t, snap.Votes, 1)
		assert.Equal(t, first, snap.Votes[0].UpdatedAt)
		assert.Equal(t, first, snap.Project.CreatedAt)

		testutil.When(t, "the user flips to down an hour later", func(t *testing.T) {
			now = first.Add(time.Hour)
			snap, err := s.SubmitVote(ctx, models.Ballot{UserID: "a", Handle: "acme", Direction: models.DirectionDown, RoleID: "r2", RoleName: "MegaLevel"})
			require.NoError(t, err)

			testutil.Then(t, "the vote carries the new role and timestamp", func(t *testing.T) {
				assert.Equal(t, models.OutcomeChanged, snap.Outcome)
				require.Len(t, snap.Votes, 1)
				assert.Equal(t, models.DirectionDown, snap.Votes[0].Direction)
				assert.Equal(t, "MegaLevel", snap.Votes[0].RoleName)
				assert.Equal(t, now, snap.Votes[0].UpdatedAt)
				assert.Equal(t, first, snap.Project.CreatedAt)
			})
		})
	})
}
