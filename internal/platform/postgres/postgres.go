// Package postgres opens the SQL pool, bootstraps the schema and classifies
// driver errors.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"voteboard/internal/platform/config"
)

// SQLSTATE codes the vote transaction retries on.
const (
	CodeUniqueViolation      = "23505"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// Open connects through the pgx database/sql driver and pings once.
func Open(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         BIGSERIAL PRIMARY KEY,
	handle     TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS votes (
	user_id    TEXT NOT NULL,
	project_id BIGINT NOT NULL REFERENCES projects(id),
	direction  TEXT NOT NULL CHECK (direction IN ('up', 'down')),
	role_id    TEXT NOT NULL,
	role_name  TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, project_id)
);

CREATE INDEX IF NOT EXISTS votes_project_id_idx ON votes (project_id);

CREATE TABLE IF NOT EXISTS community_users (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	role_ids     TEXT[] NOT NULL DEFAULT '{}',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tables when they are missing. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SQLState extracts the SQLSTATE from either driver's error type.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsRetryable reports whether the whole transaction should be attempted again.
func IsRetryable(err error) bool {
	switch SQLState(err) {
	case CodeUniqueViolation, CodeSerializationFailure, CodeDeadlockDetected:
		return true
	}
	return false
}

// IsUnavailable reports connection level failures.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	// class 08: connection exception
	state := SQLState(err)
	return len(state) == 5 && state[:2] == "08"
}
