package session

import (
	"context"
	"time"
)

// Store persists session records.
//
// Implementations must return copies so callers can never mutate stored
// state outside Update, and must wrap ErrStoreUnavailable when the backing
// store cannot be reached.
type Store interface {
	// Create inserts a new record. Returns ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, s *Session) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)

	// Update applies fn to the current record and writes the result only if
	// the record was not modified in the meantime; otherwise it returns
	// ErrConflict. An error returned by fn aborts the update unchanged.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)

	// ListActive returns the active sessions of a user ordered by
	// CreatedAt, then ID.
	ListActive(ctx context.Context, userID string) ([]*Session, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// ListExpiredBefore returns ids of records whose PurgeAt is before ts.
	ListExpiredBefore(ctx context.Context, ts time.Time) ([]string, error)
}
