package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "voteboard/pkg/domain-errors"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "plain", raw: "acme", want: "acme"},
		{name: "leading at and case", raw: "  @Acme_Labs ", want: "acme_labs"},
		{name: "only one at is stripped", raw: "@@acme", wantErr: true},
		{name: "empty", raw: "   ", wantErr: true},
		{name: "bare at", raw: "@", wantErr: true},
		{name: "too long", raw: strings.Repeat("a", 33), wantErr: true},
		{name: "max length", raw: strings.Repeat("a", 32), want: strings.Repeat("a", 32)},
		{name: "illegal character", raw: "acme-labs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeHandle(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVoteRequestValidate(t *testing.T) {
	t.Run("nil request", func(t *testing.T) {
		var req *VoteRequest
		_, err := req.Validate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("defaults project name to handle", func(t *testing.T) {
		req := &VoteRequest{ProjectHandle: "@Acme", Direction: "UP", UserID: " u1 "}
		cmd, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, VoteCommand{UserID: "u1", Handle: "acme", ProjectName: "acme", Direction: DirectionUp}, cmd)
	})

	t.Run("keeps project name", func(t *testing.T) {
		req := &VoteRequest{ProjectHandle: "acme", Direction: "down", UserID: "u1", ProjectName: " Acme Labs "}
		cmd, err := req.Validate()
		require.NoError(t, err)
		assert.Equal(t, "Acme Labs", cmd.ProjectName)
		assert.Equal(t, DirectionDown, cmd.Direction)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		bad := []VoteRequest{
			{ProjectHandle: "acme", Direction: "sideways", UserID: "u1"},
			{ProjectHandle: "acme", Direction: "up"},
			{ProjectHandle: "", Direction: "up", UserID: "u1"},
			{ProjectHandle: "acme", Direction: "up", UserID: "u1", ProjectName: strings.Repeat("x", 65)},
		}
		for _, req := range bad {
			_, err := req.Validate()
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "request %+v", req)
		}
	})
}

func TestBuildBoard(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	projects := []ProjectVotes{
		{
			Project: Project{ID: 1, Handle: "acme", Name: "Acme"},
			Votes: []Vote{
				{UserID: "a", Direction: DirectionDown, RoleName: "MiniETH"},
				{UserID: "b", Direction: DirectionUp, RoleName: "MegaLevel"},
			},
		},
		{
			Project: Project{ID: 2, Handle: "zeta", Name: "Zeta"},
			Votes: []Vote{
				{UserID: "a", Direction: DirectionUp, RoleName: "MiniETH"},
				{UserID: "c", Direction: DirectionUp, RoleName: "MiniETH"},
			},
		},
		{Project: Project{ID: 3, Handle: "empty", Name: "empty"}},
	}

	board := BuildBoard(projects, now)

	require.Len(t, board.Projects, 3)
	assert.Equal(t, []string{"zeta", "acme", "empty"}, []string{board.Projects[0].Handle, board.Projects[1].Handle, board.Projects[2].Handle})
	assert.Equal(t, Summary{UniqueVoters: 3, TotalVotes: 4}, board.Summary)
	assert.Equal(t, now, board.ComputedAt)

	for _, p := range board.Projects {
		up, down := 0, 0
		for _, rt := range p.Breakdown {
			up += rt.Up
			down += rt.Down
		}
		assert.Equal(t, p.Up, up, "project %s", p.Handle)
		assert.Equal(t, p.Down, down, "project %s", p.Handle)
	}

	acme := board.Projects[1]
	assert.Equal(t, map[string]RoleTally{"MiniETH": {Down: 1}, "MegaLevel": {Up: 1}}, acme.Breakdown)
}

func TestBoardView(t *testing.T) {
	board := BuildBoard([]ProjectVotes{{
		Project: Project{ID: 1, Handle: "acme", Name: "Acme"},
		Votes:   []Vote{{UserID: "a", Direction: DirectionUp, RoleName: "MiniETH"}},
	}}, time.Now())

	anon := board.View("")
	assert.Nil(t, anon.Projects[0].Votes.UserVote)

	mine := board.View("a")
	require.NotNil(t, mine.Projects[0].Votes.UserVote)
	assert.Equal(t, DirectionUp, *mine.Projects[0].Votes.UserVote)

	raw, err := json.Marshal(anon)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"projects": [{"projectHandle":"acme","projectName":"Acme","votes":{"upvotes":1,"downvotes":0,"userVote":null,"breakdown":{"MiniETH":{"up":1,"down":0}}}}],
		"summary": {"uniqueVoters":1,"totalVotes":1}
	}`, string(raw))
}
