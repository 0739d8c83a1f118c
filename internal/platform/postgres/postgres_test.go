package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pgconn.PgError{Code: CodeUniqueViolation}))
	assert.True(t, IsRetryable(fmt.Errorf("insert vote: %w", &pgconn.PgError{Code: CodeSerializationFailure})))
	assert.True(t, IsRetryable(&pq.Error{Code: CodeDeadlockDetected}))
	assert.False(t, IsRetryable(&pgconn.PgError{Code: "23514"}))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestIsUnavailable(t *testing.T) {
	assert.True(t, IsUnavailable(sql.ErrConnDone))
	assert.True(t, IsUnavailable(context.DeadlineExceeded))
	assert.True(t, IsUnavailable(&pgconn.PgError{Code: "08006"}))
	assert.False(t, IsUnavailable(&pgconn.PgError{Code: CodeUniqueViolation}))
	assert.False(t, IsUnavailable(nil))
}
