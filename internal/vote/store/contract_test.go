package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"voteboard/internal/vote/models"
	"voteboard/internal/vote/ports"
)

// StoreContractSuite runs against every Store backend.
type StoreContractSuite struct {
	suite.Suite
	ctx      context.Context
	newStore func() ports.Store
	store    ports.Store
}

func (s *StoreContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.newStore()
}

func ballot(user, handle string, d models.Direction, role string) models.Ballot {
	return models.Ballot{UserID: user, Handle: handle, Direction: d, RoleID: "id-" + role, RoleName: role}
}

func (s *StoreContractSuite) TestToggleSequence() {
	snap, err := s.store.SubmitVote(s.ctx, ballot("a", "acme", models.DirectionUp, "MiniETH"))
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, snap.Outcome)
	s.Equal("acme", snap.Project.Handle)
	s.Equal("acme", snap.Project.Name)
	s.Require().Len(snap.Votes, 1)

	snap, err = s.store.SubmitVote(s.ctx, ballot("a", "acme", models.DirectionUp, "MiniETH"))
	s.Require().NoError(err)
	s.Equal(models.OutcomeRetracted, snap.Outcome)
	s.Empty(snap.Votes)

	snap, err = s.store.SubmitVote(s.ctx, ballot("a", "acme", models.DirectionDown, "MiniETH"))
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, snap.Outcome)

	snap, err = s.store.SubmitVote(s.ctx, ballot("a", "acme", models.DirectionUp, "MegaLevel"))
	s.Require().NoError(err)
	s.Equal(models.OutcomeChanged, snap.Outcome)
	s.Require().Len(snap.Votes, 1)
	s.Equal(models.DirectionUp, snap.Votes[0].Direction)
	s.Equal("MegaLevel", snap.Votes[0].RoleName)
}

func (s *StoreContractSuite) TestBallotTimeStampsVoteAndProject() {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := ballot("a", "acme", models.DirectionUp, "MiniETH")
	b.At = created
	snap, err := s.store.SubmitVote(s.ctx, b)
	s.Require().NoError(err)
	s.Require().Len(snap.Votes, 1)
	s.True(created.Equal(snap.Votes[0].UpdatedAt), "vote stamped %v", snap.Votes[0].UpdatedAt)
	s.True(created.Equal(snap.Project.CreatedAt), "project stamped %v", snap.Project.CreatedAt)

	changed := created.Add(time.Hour)
	b = ballot("a", "acme", models.DirectionDown, "MiniETH")
	b.At = changed
	snap, err = s.store.SubmitVote(s.ctx, b)
	s.Require().NoError(err)
	s.Require().Len(snap.Votes, 1)
	s.True(changed.Equal(snap.Votes[0].UpdatedAt), "vote restamped %v", snap.Votes[0].UpdatedAt)
	s.True(created.Equal(snap.Project.CreatedAt), "project keeps its creation time")
}

func (s *StoreContractSuite) TestProjectNameOnlyOnCreate() {
	b := ballot("a", "acme", models.DirectionUp, "MiniETH")
	b.ProjectName = "Acme Labs"
	_, err := s.store.SubmitVote(s.ctx, b)
	s.Require().NoError(err)

	b = ballot("b", "acme", models.DirectionUp, "MiniETH")
	b.ProjectName = "Renamed"
	snap, err := s.store.SubmitVote(s.ctx, b)
	s.Require().NoError(err)
	s.Equal("Acme Labs", snap.Project.Name)
}

func (s *StoreContractSuite) TestListProjectVotesKeepsEmptyProjects() {
	_, err := s.store.SubmitVote(s.ctx, ballot("a", "acme", models.DirectionUp, "MiniETH"))
	s.Require().NoError(err)
	_, err = s.store.SubmitVote(s.ctx, ballot("a", "acme", models.DirectionUp, "MiniETH"))
	s.Require().NoError(err)
	_, err = s.store.SubmitVote(s.ctx, ballot("b", "zeta", models.DirectionDown, "MegaLevel"))
	s.Require().NoError(err)

	list, err := s.store.ListProjectVotes(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("acme", list[0].Project.Handle)
	s.Empty(list[0].Votes)
	s.Equal("zeta", list[1].Project.Handle)
	s.Len(list[1].Votes, 1)
}

// An odd number of identical toggles by one user leaves exactly one vote; an
// even number leaves none.
func (s *StoreContractSuite) TestConcurrentTogglesKeepOneVotePerUser() {
	const workers = 7
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.SubmitVote(s.ctx, ballot("a", "race", models.DirectionUp, "MiniETH"))
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	list, err := s.store.ListProjectVotes(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Len(list[0].Votes, 1)
}

func (s *StoreContractSuite) TestConcurrentUsersCreateOneProject() {
	const users = 10
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.store.SubmitVote(s.ctx, ballot(fmt.Sprintf("u%d", i), "fresh", models.DirectionUp, "MiniETH"))
			s.NoError(err)
		}(i)
	}
	wg.Wait()

	list, err := s.store.ListProjectVotes(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Len(list[0].Votes, users)
}
