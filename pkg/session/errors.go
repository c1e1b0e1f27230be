package session

import "errors"

var (
	ErrNotFound           = errors.New("session.not_found")
	ErrExpired            = errors.New("session.expired")
	ErrTerminated         = errors.New("session.terminated")
	ErrServiceUnavailable = errors.New("session.service_unavailable")

	// ErrStoreUnavailable is wrapped by store implementations when the
	// backing store cannot be reached. It is transient.
	ErrStoreUnavailable = errors.New("session.store_unavailable")

	// ErrConflict reports a lost compare-and-swap. Service retries it and
	// never returns it.
	ErrConflict = errors.New("session.conflict")

	ErrAlreadyExists   = errors.New("session.already_exists")
	ErrInvalidSession  = errors.New("session.invalid")
	ErrTokenGeneration = errors.New("session.token_generation_failed")
	ErrInvalidConfig   = errors.New("session.invalid_config")
	ErrMissingUserID   = errors.New("session.missing_user_id")
)

// IsAuthError reports whether err means the caller has to re-authenticate.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrTerminated)
}
