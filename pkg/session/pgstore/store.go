// Package pgstore implements session.Store and session.Locker on PostgreSQL.
//
// Sessions live in a single table with a version column used for
// optimistic concurrency. A partial index over active rows serves
// ListActive and an index over purge_at serves the sweeper. Locks are
// session-level advisory locks held on a dedicated pooled connection.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessionguard/pkg/pg"
	"github.com/dmitrymomot/sessionguard/pkg/session"
)

const columns = `id, public_id, user_id, external_auth_ref,
	created_at, last_activity_at, expires_at,
	is_active, terminated_at, termination_reason,
	is_suspicious, suspicious_reason, suspicious_at,
	metadata, request_count, request_window_start, last_endpoint,
	csrf_token, version`

const (
	insertQuery = `INSERT INTO sessions (` + columns + `, purge_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1, $19)`

	selectQuery = `SELECT ` + columns + ` FROM sessions WHERE id = $1`

	updateQuery = `UPDATE sessions SET
	public_id = $3, external_auth_ref = $4,
	created_at = $5, last_activity_at = $6, expires_at = $7,
	is_active = $8, terminated_at = $9, termination_reason = $10,
	is_suspicious = $11, suspicious_reason = $12, suspicious_at = $13,
	metadata = $14, request_count = $15, request_window_start = $16, last_endpoint = $17,
	csrf_token = $18, purge_at = $19,
	version = version + 1
WHERE id = $1 AND version = $2
RETURNING version`

	existsQuery = `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`

	listActiveQuery = `SELECT ` + columns + ` FROM sessions
WHERE user_id = $1 AND is_active
ORDER BY created_at, id`

	deleteQuery = `DELETE FROM sessions WHERE id = $1`

	listExpiredQuery = `SELECT id FROM sessions WHERE purge_at < $1 ORDER BY purge_at`
)

// Store is a PostgreSQL-backed session.Store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store. The schema from Migrations must be applied first.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts sess; it fails with session.ErrAlreadyExists if the id is taken.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return session.ErrInvalidSession
	}

	_, err := s.pool.Exec(ctx, insertQuery,
		sess.ID, sess.PublicID, sess.UserID, sess.ExternalAuthRef,
		sess.CreatedAt, sess.LastActivityAt, sess.ExpiresAt,
		sess.IsActive, sess.TerminatedAt, sess.TerminationReason,
		sess.IsSuspicious, sess.SuspiciousReason, sess.SuspiciousAt,
		sess.Metadata, sess.RequestCount, sess.RequestWindowStart, sess.LastEndpoint,
		sess.CSRFToken, sess.PurgeAt(),
	)
	if err != nil {
		return mapError(err)
	}

	sess.Version = 1
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, selectQuery, id))
	if err != nil {
		return nil, mapError(err)
	}
	return sess, nil
}

// Update applies fn to a copy of the session and writes it back only if
// the stored version is unchanged.
func (s *Store) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.UserID = current.ID, current.UserID

	var version int64
	err = s.pool.QueryRow(ctx, updateQuery,
		next.ID, current.Version, next.PublicID, next.ExternalAuthRef,
		next.CreatedAt, next.LastActivityAt, next.ExpiresAt,
		next.IsActive, next.TerminatedAt, next.TerminationReason,
		next.IsSuspicious, next.SuspiciousReason, next.SuspiciousAt,
		next.Metadata, next.RequestCount, next.RequestWindowStart, next.LastEndpoint,
		next.CSRFToken, next.PurgeAt(),
	).Scan(&version)
	if pg.IsNotFoundError(err) {
		// Either the version moved or the row was deleted.
		var exists bool
		if err := s.pool.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
			return nil, mapError(err)
		}
		if !exists {
			return nil, session.ErrNotFound
		}
		return nil, session.ErrConflict
	}
	if err != nil {
		return nil, mapError(err)
	}

	next.Version = version
	return next, nil
}

// ListActive returns the active sessions of a user, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*session.Session, error) {
	rows, err := s.pool.Query(ctx, listActiveQuery, userID)
	if err != nil {
		return nil, mapError(err)
	}

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*session.Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, mapError(err)
	}
	if result == nil {
		result = []*session.Session{}
	}

	// Text collation may order ids differently from a byte comparison.
	session.SortByCreation(result)
	return result, nil
}

// Delete removes the row. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, deleteQuery, id)
	return mapError(err)
}

// ListExpiredBefore returns ids of sessions whose purge time is before ts.
func (s *Store) ListExpiredBefore(ctx context.Context, ts time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, listExpiredQuery, ts)
	if err != nil {
		return nil, mapError(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var sess session.Session
	err := row.Scan(
		&sess.ID, &sess.PublicID, &sess.UserID, &sess.ExternalAuthRef,
		&sess.CreatedAt, &sess.LastActivityAt, &sess.ExpiresAt,
		&sess.IsActive, &sess.TerminatedAt, &sess.TerminationReason,
		&sess.IsSuspicious, &sess.SuspiciousReason, &sess.SuspiciousAt,
		&sess.Metadata, &sess.RequestCount, &sess.RequestWindowStart, &sess.LastEndpoint,
		&sess.CSRFToken, &sess.Version,
	)
	if err != nil {
		return nil, err
	}

	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.LastActivityAt = sess.LastActivityAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.RequestWindowStart = sess.RequestWindowStart.UTC()
	if sess.TerminatedAt != nil {
		t := sess.TerminatedAt.UTC()
		sess.TerminatedAt = &t
	}
	if sess.SuspiciousAt != nil {
		t := sess.SuspiciousAt.UTC()
		sess.SuspiciousAt = &t
	}
	return &sess, nil
}

// mapError translates pgx errors into the store contract. Server errors
// that signal an overloaded or restarting database count as unavailability.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err):
		return session.ErrNotFound
	case pg.IsDuplicateKeyError(err):
		return session.ErrAlreadyExists
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case pg.IsTransientServerError(err):
		return errors.Join(session.ErrStoreUnavailable, err)
	case pg.IsServerError(err):
		return fmt.Errorf("pgstore: %w", err)
	default:
		return errors.Join(session.ErrStoreUnavailable, err)
	}
}

var _ session.Store = (*Store)(nil)
