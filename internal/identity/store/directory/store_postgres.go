package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"voteboard/internal/identity/models"
	"voteboard/internal/platform/postgres"
	"voteboard/pkg/platform/sentinel"
	"voteboard/pkg/platform/tx"
)

// PostgresStore reads the community_users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, userID string) (*models.CommunityUser, error) {
	var (
		user    models.CommunityUser
		roleIDs pq.StringArray
	)
	err := tx.ExecutorFor(ctx, s.db).QueryRowContext(ctx,
		`SELECT user_id, display_name, role_ids, updated_at FROM community_users WHERE user_id = $1`,
		userID,
	).Scan(&user.UserID, &user.DisplayName, &roleIDs, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		if postgres.IsUnavailable(err) {
			return nil, fmt.Errorf("find community user: %w: %v", sentinel.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("find community user: %w", err)
	}
	user.RoleIDs = []string(roleIDs)
	return &user, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, user models.CommunityUser) error {
	roleIDs := user.RoleIDs
	if roleIDs == nil {
		roleIDs = []string{}
	}
	_, err := tx.ExecutorFor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO community_users (user_id, display_name, role_ids, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role_ids = EXCLUDED.role_ids,
			updated_at = now()
	`, user.UserID, user.DisplayName, pq.Array(roleIDs))
	if err != nil {
		return fmt.Errorf("upsert community user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
