package models

import (
	"sort"
	"time"
)

// RoleTally counts votes cast under one role.
type RoleTally struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// ProjectTally is the computed aggregate of one project. Voters maps user id
// to direction so each reader's own vote can be derived without a store read.
type ProjectTally struct {
	Handle    string               `json:"handle"`
	Name      string               `json:"name"`
	Up        int                  `json:"up"`
	Down      int                  `json:"down"`
	Breakdown map[string]RoleTally `json:"breakdown"`
	Voters    map[string]Direction `json:"voters"`
}

// Summary counts distinct voters and votes across all projects.
type Summary struct {
	UniqueVoters int `json:"uniqueVoters"`
	TotalVotes   int `json:"totalVotes"`
}

// Board is the cached aggregate of every project.
type Board struct {
	Projects   []ProjectTally `json:"projects"`
	Summary    Summary        `json:"summary"`
	ComputedAt time.Time      `json:"computedAt"`
}

// Tally computes the aggregate of a single project.
func Tally(pv ProjectVotes) ProjectTally {
	t := ProjectTally{
		Handle:    pv.Project.Handle,
		Name:      pv.Project.Name,
		Breakdown: make(map[string]RoleTally),
		Voters:    make(map[string]Direction, len(pv.Votes)),
	}
	for _, v := range pv.Votes {
		rt := t.Breakdown[v.RoleName]
		switch v.Direction {
		case DirectionUp:
			t.Up++
			rt.Up++
		case DirectionDown:
			t.Down++
			rt.Down++
		default:
			continue
		}
		t.Breakdown[v.RoleName] = rt
		t.Voters[v.UserID] = v.Direction
	}
	return t
}

// BuildBoard tallies every project. Projects are ordered by net score
// descending, then by handle.
func BuildBoard(projects []ProjectVotes, now time.Time) Board {
	board := Board{
		Projects:   make([]ProjectTally, 0, len(projects)),
		ComputedAt: now,
	}
	voters := make(map[string]struct{})
	for _, pv := range projects {
		t := Tally(pv)
		for userID := range t.Voters {
			voters[userID] = struct{}{}
		}
		board.Summary.TotalVotes += t.Up + t.Down
		board.Projects = append(board.Projects, t)
	}
	board.Summary.UniqueVoters = len(voters)

	sort.SliceStable(board.Projects, func(i, j int) bool {
		a, b := board.Projects[i], board.Projects[j]
		if na, nb := a.Up-a.Down, b.Up-b.Down; na != nb {
			return na > nb
		}
		return a.Handle < b.Handle
	})
	return board
}
