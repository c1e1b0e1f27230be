package session

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// withStore runs op with a per-attempt timeout, retrying transient failures
// with exponential backoff. Exhausted or cancelled attempts are reported as
// ErrServiceUnavailable.
func (s *Service) withStore(ctx context.Context, op func(ctx context.Context) error) error {
	base := s.cfg.StoreRetryInterval
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(max(s.cfg.StoreRetryAttempts-1, 0)), retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
		defer cancel()

		err := op(attemptCtx)
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if isTransient(err) {
		return errors.Join(ErrServiceUnavailable, err)
	}
	return err
}

// update applies fn through Store.Update, retrying lost compare-and-swap
// races up to ConflictRetries times.
func (s *Service) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	for range s.cfg.ConflictRetries {
		var updated *Session
		err := s.withStore(ctx, func(ctx context.Context) error {
			var err error
			updated, err = s.store.Update(ctx, id, fn)
			return err
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		return updated, err
	}
	return nil, errors.Join(ErrServiceUnavailable, ErrConflict)
}

func isTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
