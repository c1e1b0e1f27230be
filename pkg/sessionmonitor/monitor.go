package sessionmonitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/sessionguard/pkg/logger"
)

// Monitor polls a session and schedules refreshes. It is safe for
// concurrent use; Touch is typically called from input handlers while Run
// owns a goroutine.
type Monitor struct {
	client Client
	clock  func() time.Time
	log    *slog.Logger

	poll          time.Duration
	refreshLead   time.Duration
	imminent      time.Duration
	refreshTries  uint64
	refreshDelay  time.Duration
	onExpiring    func(Status)
	onImminent    func(Status)
	onSuspicious  func(Status)
	onExpired     func()
	onRefreshed   func(Status)
	onUnavailable func(error)

	mu            sync.Mutex
	lastActivity  time.Time
	lastRefresh   time.Time
	warned        bool
	imminentFired bool
	suspicious    bool
	ended         bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithPollInterval sets how often the status is fetched.
func WithPollInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.poll = d
		}
	}
}

// WithRefreshLead refreshes when at most d remains before the idle expiry
// and the user was active since the last refresh.
func WithRefreshLead(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.refreshLead = d
		}
	}
}

// WithImminentThreshold sets the remaining time that triggers OnIdleImminent.
func WithImminentThreshold(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.imminent = d
		}
	}
}

// WithRefreshRetry retries a refresh that failed with ErrUnavailable.
func WithRefreshRetry(attempts int, delay time.Duration) Option {
	return func(m *Monitor) {
		if attempts > 0 {
			m.refreshTries = uint64(attempts)
		}
		if delay > 0 {
			m.refreshDelay = delay
		}
	}
}

// WithLogger sets the monitor's logger. Nil keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock overrides time.Now for activity bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.clock = now
		}
	}
}

// OnExpiringSoon fires when the server starts reporting the idle warning.
// It fires again only after a refresh has cleared the warning.
func OnExpiringSoon(fn func(Status)) Option {
	return func(m *Monitor) { m.onExpiring = fn }
}

// OnIdleImminent fires when less than the imminent threshold of idle time
// is left. It re-arms once a refresh pushes expiry back out.
func OnIdleImminent(fn func(Status)) Option {
	return func(m *Monitor) { m.onImminent = fn }
}

// OnSuspicious fires once, the first time the session is seen flagged.
func OnSuspicious(fn func(Status)) Option {
	return func(m *Monitor) { m.onSuspicious = fn }
}

// OnExpired fires once when the server stops accepting the session.
func OnExpired(fn func()) Option {
	return func(m *Monitor) { m.onExpired = fn }
}

// OnRefreshed is called after each successful refresh with the new status.
func OnRefreshed(fn func(Status)) Option {
	return func(m *Monitor) { m.onRefreshed = fn }
}

// OnUnavailable is called when a poll fails for a reason other than the
// session ending. Polling continues.
func OnUnavailable(fn func(error)) Option {
	return func(m *Monitor) { m.onUnavailable = fn }
}

// New creates a Monitor polling client. It does nothing until Run is called.
func New(client Client, opts ...Option) *Monitor {
	m := &Monitor{
		client:       client,
		clock:        time.Now,
		log:          logger.Discard(),
		poll:         30 * time.Second,
		refreshLead:  2 * time.Minute,
		imminent:     time.Minute,
		refreshTries: 3,
		refreshDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("sessionmonitor"))
	return m
}

// Touch records user activity. The next check refreshes the session if it
// is close to idling out.
func (m *Monitor) Touch() {
	m.mu.Lock()
	m.lastActivity = m.clock()
	m.mu.Unlock()
}

// Run checks immediately and then every poll interval until ctx is done or
// the session ends. It returns nil on cancellation and ErrSessionEnded
// when the server rejected the session.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		if err := m.Check(ctx); errors.Is(err, ErrSessionEnded) {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Check performs one poll: fetch the status, refresh when due and fire
// callbacks for thresholds crossed since the previous check.
func (m *Monitor) Check(ctx context.Context) error {
	st, err := m.client.Status(ctx)
	if err != nil {
		return m.failed(ctx, err)
	}

	if m.refreshDue(st) {
		refreshed, err := m.refresh(ctx)
		if err != nil {
			return m.failed(ctx, err)
		}
		st = refreshed
	}

	m.observe(st)
	return nil
}

func (m *Monitor) refreshDue(st *Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastActivity.IsZero() || !m.lastActivity.After(m.lastRefresh) {
		return false
	}
	return st.IdleWarning || remaining(st) <= m.refreshLead
}

func (m *Monitor) refresh(ctx context.Context) (*Status, error) {
	started := m.clock()
	backoff := retry.WithMaxRetries(m.refreshTries-1, retry.NewExponential(m.refreshDelay))

	var st *Status
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		st, err = m.client.Refresh(ctx)
		if errors.Is(err, ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lastRefresh = started
	m.mu.Unlock()

	m.log.DebugContext(ctx, "session refreshed", logger.PublicID(st.PublicID))
	if m.onRefreshed != nil {
		m.onRefreshed(*st)
	}
	return st, nil
}

// observe fires threshold callbacks. Warning callbacks re-arm once a
// refresh moves the session back below the threshold.
func (m *Monitor) observe(st *Status) {
	left := remaining(st)

	m.mu.Lock()
	fireExpiring := st.IdleWarning && !m.warned
	m.warned = st.IdleWarning

	fireImminent := left <= m.imminent && !m.imminentFired
	m.imminentFired = left <= m.imminent

	fireSuspicious := st.IsSuspicious && !m.suspicious
	m.suspicious = m.suspicious || st.IsSuspicious
	m.mu.Unlock()

	if fireExpiring && m.onExpiring != nil {
		m.onExpiring(*st)
	}
	if fireImminent && m.onImminent != nil {
		m.onImminent(*st)
	}
	if fireSuspicious && m.onSuspicious != nil {
		m.onSuspicious(*st)
	}
}

func (m *Monitor) failed(ctx context.Context, err error) error {
	if errors.Is(err, ErrSessionEnded) {
		m.mu.Lock()
		first := !m.ended
		m.ended = true
		m.mu.Unlock()

		if first {
			m.log.InfoContext(ctx, "session ended", logger.Error(err))
			if m.onExpired != nil {
				m.onExpired()
			}
		}
		return err
	}

	if ctx.Err() == nil {
		m.log.WarnContext(ctx, "session status unavailable", logger.Error(err))
		if m.onUnavailable != nil {
			m.onUnavailable(err)
		}
	}
	return err
}

// remaining is measured against the server clock so client skew does not
// matter.
func remaining(st *Status) time.Duration {
	return st.ExpiresAt.Sub(st.ServerTime)
}
