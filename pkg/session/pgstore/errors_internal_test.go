package pgstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows), session.ErrNotFound)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23505"}), session.ErrAlreadyExists)
	assert.ErrorIs(t, mapError(context.Canceled), context.Canceled)

	for _, code := range []string{"57P01", "53300", "40001", "57014"} {
		err := mapError(fmt.Errorf("update: %w", &pgconn.PgError{Code: code, Message: "server says no"}))
		assert.ErrorIs(t, err, session.ErrStoreUnavailable, code)
		assert.False(t, session.IsAuthError(err), code)
	}

	syntax := mapError(&pgconn.PgError{Code: "42601"})
	assert.Error(t, syntax)
	assert.NotErrorIs(t, syntax, session.ErrStoreUnavailable)

	assert.ErrorIs(t, mapError(errors.New("dial tcp: connection refused")), session.ErrStoreUnavailable)
}
