package session

import (
	"log/slog"
	"time"
)

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithLocker sets the per-user lock used by Create and TerminateAll.
// Multi-instance deployments need a shared implementation.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithClock overrides time.Now. Returned times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithLogger sets the service logger. Nil keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEventHook registers a hook. It may be given more than once.
func WithEventHook(h EventHook) Option {
	return func(s *Service) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}
