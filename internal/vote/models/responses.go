package models

// VotesResponse is the per-project vote summary. UserVote is null when the
// reader is anonymous or has no vote on the project.
type VotesResponse struct {
	Upvotes   int                  `json:"upvotes"`
	Downvotes int                  `json:"downvotes"`
	UserVote  *Direction           `json:"userVote"`
	Breakdown map[string]RoleTally `json:"breakdown"`
}

type ProjectResponse struct {
	ProjectHandle string        `json:"projectHandle"`
	ProjectName   string        `json:"projectName"`
	Votes         VotesResponse `json:"votes"`
}

// BoardResponse is the GET /api/votes body.
type BoardResponse struct {
	Projects []ProjectResponse `json:"projects"`
	Summary  Summary           `json:"summary"`
}

// SubmitResponse is the POST /api/votes body: the post-write state of the
// project plus what the toggle did.
type SubmitResponse struct {
	ProjectResponse
	Outcome Outcome `json:"outcome"`
}

// View renders t for userID; an empty userID reads anonymously.
func (t ProjectTally) View(userID string) ProjectResponse {
	breakdown := make(map[string]RoleTally, len(t.Breakdown))
	for role, rt := range t.Breakdown {
		breakdown[role] = rt
	}
	resp := ProjectResponse{
		ProjectHandle: t.Handle,
		ProjectName:   t.Name,
		Votes: VotesResponse{
			Upvotes:   t.Up,
			Downvotes: t.Down,
			Breakdown: breakdown,
		},
	}
	if userID != "" {
		if d, ok := t.Voters[userID]; ok {
			resp.Votes.UserVote = &d
		}
	}
	return resp
}

// View renders the board for userID.
func (b Board) View(userID string) BoardResponse {
	resp := BoardResponse{
		Projects: make([]ProjectResponse, 0, len(b.Projects)),
		Summary:  b.Summary,
	}
	for _, p := range b.Projects {
		resp.Projects = append(resp.Projects, p.View(userID))
	}
	return resp
}
