package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voteboard/internal/platform/postgres"
	"voteboard/internal/vote/metrics"
	"voteboard/internal/vote/models"
	"voteboard/pkg/platform/sentinel"
	"voteboard/pkg/platform/tx"
)

const defaultMaxAttempts = 3

var tracer = otel.Tracer("voteboard/vote/store")

// PostgresStore runs the toggle in a read-committed transaction. The votes
// primary key arbitrates concurrent first votes; the losing transaction fails
// with a unique violation and is retried from the start.
type PostgresStore struct {
	db          *sql.DB
	txTimeout   time.Duration
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type PostgresOption func(*PostgresStore)

func WithTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) { s.txTimeout = d }
}

// WithMaxAttempts bounds how often a conflicting toggle is attempted.
func WithMaxAttempts(n int) PostgresOption {
	return func(s *PostgresStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func WithLogger(logger *slog.Logger) PostgresOption {
	return func(s *PostgresStore) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) PostgresOption {
	return func(s *PostgresStore) { s.metrics = m }
}

func NewPostgresStore(db *sql.DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:          db,
		txTimeout:   tx.DefaultTimeout,
		maxAttempts: defaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitVote returns sentinel.ErrConflict once every attempt lost a race and
// sentinel.ErrUnavailable for connection failures and timeouts.
func (s *PostgresStore) SubmitVote(ctx context.Context, ballot models.Ballot) (*models.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "vote.store.SubmitVote")
	defer span.End()
	span.SetAttributes(attribute.String("project.handle", ballot.Handle))

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var snapshot *models.Snapshot
		err := tx.Run(ctx, s.db, s.txTimeout, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, _ *sql.Tx) error {
			var err error
			snapshot, err = s.toggle(ctx, ballot)
			return err
		})
		if err == nil {
			span.SetAttributes(attribute.Int("tx.attempts", attempt), attribute.String("vote.outcome", string(snapshot.Outcome)))
			return snapshot, nil
		}
		lastErr = err
		if !postgres.IsRetryable(err) {
			break
		}
		s.metrics.IncrementStoreRetries()
		s.logger.DebugContext(ctx, "vote toggle conflicted, retrying",
			"attempt", attempt,
			"sqlstate", postgres.SQLState(err),
		)
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "toggle failed")
	return nil, classify(lastErr)
}

func (s *PostgresStore) toggle(ctx context.Context, ballot models.Ballot) (*models.Snapshot, error) {
	exec := tx.ExecutorFor(ctx, s.db)

	name := ballot.ProjectName
	if name == "" {
		name = ballot.Handle
	}
	at := ballot.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := exec.ExecContext(ctx,
		`INSERT INTO projects (handle, name, created_at) VALUES ($1, $2, $3) ON CONFLICT (handle) DO NOTHING`,
		ballot.Handle, name, at,
	); err != nil {
		return nil, fmt.Errorf("upsert project: %w", err)
	}

	var project models.Project
	if err := exec.QueryRowContext(ctx,
		`SELECT id, handle, name, created_at FROM projects WHERE handle = $1`,
		ballot.Handle,
	).Scan(&project.ID, &project.Handle, &project.Name, &project.CreatedAt); err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}

	var current string
	err := exec.QueryRowContext(ctx,
		`SELECT direction FROM votes WHERE user_id = $1 AND project_id = $2 FOR UPDATE`,
		ballot.UserID, project.ID,
	).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("select vote: %w", err)
	}

	var outcome models.Outcome
	switch {
	case errors.Is(err, sql.ErrNoRows):
		outcome = models.OutcomeCreated
		_, err = exec.ExecContext(ctx, `
			INSERT INTO votes (user_id, project_id, direction, role_id, role_name, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, ballot.UserID, project.ID, string(ballot.Direction), ballot.RoleID, ballot.RoleName, at)
	case models.Direction(current) == ballot.Direction:
		outcome = models.OutcomeRetracted
		_, err = exec.ExecContext(ctx,
			`DELETE FROM votes WHERE user_id = $1 AND project_id = $2`,
			ballot.UserID, project.ID,
		)
	default:
		outcome = models.OutcomeChanged
		_, err = exec.ExecContext(ctx, `
			UPDATE votes SET direction = $3, role_id = $4, role_name = $5, updated_at = $6
			WHERE user_id = $1 AND project_id = $2
		`, ballot.UserID, project.ID, string(ballot.Direction), ballot.RoleID, ballot.RoleName, at)
	}
	if err != nil {
		return nil, fmt.Errorf("apply %s vote: %w", outcome, err)
	}

	votes, err := s.projectVotes(ctx, exec, project.ID)
	if err != nil {
		return nil, err
	}
	return &models.Snapshot{
		ProjectVotes: models.ProjectVotes{Project: project, Votes: votes},
		Outcome:      outcome,
	}, nil
}

func (s *PostgresStore) projectVotes(ctx context.Context, exec tx.Executor, projectID int64) ([]models.Vote, error) {
	rows, err := exec.QueryContext(ctx, `
		SELECT user_id, direction, role_id, role_name, updated_at
		FROM votes WHERE project_id = $1 ORDER BY user_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("select project votes: %w", err)
	}
	defer rows.Close()

	votes := []models.Vote{}
	for rows.Next() {
		v := models.Vote{ProjectID: projectID}
		var direction string
		if err := rows.Scan(&v.UserID, &direction, &v.RoleID, &v.RoleName, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.Direction = models.Direction(direction)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return votes, nil
}

// ListProjectVotes reads every project with its votes in one statement, so
// the result is a consistent snapshot.
func (s *PostgresStore) ListProjectVotes(ctx context.Context) ([]models.ProjectVotes, error) {
	ctx, span := tracer.Start(ctx, "vote.store.ListProjectVotes")
	defer span.End()

	rows, err := tx.ExecutorFor(ctx, s.db).QueryContext(ctx, `
		SELECT p.id, p.handle, p.name, p.created_at,
		       v.user_id, v.direction, v.role_id, v.role_name, v.updated_at
		FROM projects p
		LEFT JOIN votes v ON v.project_id = p.id
		ORDER BY p.id, v.user_id
	`)
	if err != nil {
		span.RecordError(err)
		return nil, classify(fmt.Errorf("list votes: %w", err))
	}
	defer rows.Close()

	var out []models.ProjectVotes
	for rows.Next() {
		var (
			p                                   models.Project
			userID, direction, roleID, roleName sql.NullString
			updatedAt                           sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Handle, &p.Name, &p.CreatedAt,
			&userID, &direction, &roleID, &roleName, &updatedAt); err != nil {
			return nil, classify(fmt.Errorf("scan project vote: %w", err))
		}
		if len(out) == 0 || out[len(out)-1].Project.ID != p.ID {
			out = append(out, models.ProjectVotes{Project: p, Votes: []models.Vote{}})
		}
		if !userID.Valid {
			continue
		}
		last := &out[len(out)-1]
		last.Votes = append(last.Votes, models.Vote{
			UserID:    userID.String,
			ProjectID: p.ID,
			Direction: models.Direction(direction.String),
			RoleID:    roleID.String,
			RoleName:  roleName.String,
			UpdatedAt: updatedAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate project votes: %w", err))
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case postgres.IsRetryable(err):
		return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
	case postgres.IsUnavailable(err):
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	default:
		return err
	}
}
