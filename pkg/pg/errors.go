package pg

import (
	"context"
	"errors"
	"net"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenDBConnection = errors.New("failed to open db connection")
	ErrEmptyConnectionString    = errors.New("empty postgres connection string, use PG_CONN_URL env var")
	ErrHealthcheckFailed        = errors.New("healthcheck failed, connection is not available")
	ErrFailedToParseDBConfig    = errors.New("failed to parse db config")
	ErrFailedToApplyMigrations  = errors.New("failed to apply migrations")
	ErrMigrationsNotProvided    = errors.New("migrations filesystem not provided")
)

// IsNotFoundError detects pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}

// IsTxClosedError detects attempts to use a committed or rolled back transaction.
func IsTxClosedError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrTxClosed)
}

// IsDuplicateKeyError detects unique constraint violations (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsForeignKeyViolationError detects referential integrity violations (SQLSTATE 23503).
func IsForeignKeyViolationError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// IsServerError reports whether err was returned by the server in response
// to a statement, as opposed to a connectivity or client-side failure.
// Server errors are deterministic and retrying the same statement will not help.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// transientClasses are SQLSTATE classes that report the server, not the
// statement: connection exceptions, insufficient resources, operator
// intervention and system errors.
var transientClasses = []string{"08", "53", "57", "58"}

// transientCodes are single SQLSTATE codes worth retrying: serialization
// failure, deadlock and lock not available.
var transientCodes = []string{"40001", "40P01", "55P03"}

// IsTransientServerError reports whether the server refused the statement
// for a reason that may go away on retry, such as shutdown (57P01),
// too many connections (53300), a cancelled statement (57014) or a
// serialization failure (40001).
func IsTransientServerError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) != 5 {
		return false
	}
	return slices.Contains(transientClasses, pgErr.Code[:2]) || slices.Contains(transientCodes, pgErr.Code)
}

// IsConnectionError reports whether err means the database could not be
// reached or did not answer in time.
func IsConnectionError(err error) bool {
	if err == nil || IsServerError(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr) || pgconn.SafeToRetry(err)
}
