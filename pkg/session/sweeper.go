package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/sessionguard/pkg/logger"
)

// Sweeper hard-deletes sessions once they have been expired or terminated
// for longer than the retention grace period.
type Sweeper struct {
	store    Store
	interval time.Duration
	grace    time.Duration
	timeout  time.Duration
	clock    func() time.Time
	log      *slog.Logger
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweeperClock overrides time.Now when computing the purge cutoff.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithSweeperLogger sets the logger for sweep results and failures.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSweeper uses CleanupInterval, RetentionGrace and StoreTimeout from cfg.
func NewSweeper(store Store, cfg Config, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: cfg.CleanupInterval,
		grace:    cfg.RetentionGrace,
		timeout:  cfg.StoreTimeout,
		clock:    time.Now,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		s.interval = DefaultConfig().CleanupInterval
	}
	if s.timeout <= 0 {
		s.timeout = DefaultConfig().StoreTimeout
	}
	s.log = s.log.With(logger.Component("session_sweeper"))
	return s
}

// Run sweeps once immediately and then on every tick until ctx is done.
// Failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		n, err := s.Sweep(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.log.ErrorContext(ctx, "session sweep failed", logger.Error(err), logger.Count(n))
		case n > 0:
			s.log.InfoContext(ctx, "expired sessions purged", logger.Count(n), logger.Duration(time.Since(start)))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep deletes every session whose PurgeAt is older than the grace period
// and returns how many were deleted. It keeps going after individual
// failures.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock().UTC().Add(-s.grace)

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	ids, err := s.store.ListExpiredBefore(listCtx, cutoff)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		delCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.store.Delete(delCtx, id)
		cancel()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	return deleted, errors.Join(errs...)
}
