package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/sessionguard/pkg/fingerprint"
	"github.com/dmitrymomot/sessionguard/pkg/logger"
	"github.com/dmitrymomot/sessionguard/pkg/useragent"
)

// tokenBytes is the entropy of session ids and CSRF tokens.
const tokenBytes = 32

// errInactive aborts an update that has nothing to do because the session
// is already inactive.
var errInactive = errors.New("session.already_inactive")

// Service is the only component that changes session state. It is safe for
// concurrent use.
type Service struct {
	store  Store
	locker Locker
	cfg    Config
	clock  func() time.Time
	log    *slog.Logger
	hooks  []EventHook
}

// NewService creates a Service backed by store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}

	s := &Service{
		store:  store,
		locker: NewKeyedMutex(),
		cfg:    DefaultConfig(),
		clock:  time.Now,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	s.log = s.log.With(logger.Component("session"))
	return s, nil
}

// Config returns the active configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// CreateParams describes a freshly authenticated client.
type CreateParams struct {
	UserID          string
	ExternalAuthRef string
	Client          Client
}

// Create issues a new session for an authenticated user. When the user
// already holds MaxConcurrent active sessions the oldest ones are evicted
// first. Eviction and insertion are serialized per user.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Session, error) {
	if p.UserID == "" {
		return nil, ErrMissingUserID
	}

	now := s.now()
	sess, err := s.newSession(p, now)
	if err != nil {
		return nil, err
	}

	held, unlock, err := s.locker.Lock(ctx, p.UserID)
	if err != nil {
		return nil, errors.Join(ErrServiceUnavailable, fmt.Errorf("lock user sessions: %w", err))
	}
	defer unlock()

	var active []*Session
	if err := s.withStore(held, func(ctx context.Context) error {
		var err error
		active, err = s.store.ListActive(ctx, p.UserID)
		return err
	}); err != nil {
		return nil, lockedError(held, err)
	}

	live := make([]*Session, 0, len(active))
	for _, a := range active {
		if !a.IsExpired(now) {
			live = append(live, a)
			continue
		}
		if err := s.deactivate(held, a.ID, TerminatedExpired, EventExpired, now); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, lockedError(held, err)
		}
	}

	SortByCreation(live)
	for len(live) >= s.cfg.MaxConcurrent {
		if err := lockLost(held); err != nil {
			return nil, err
		}
		if err := s.deactivate(held, live[0].ID, TerminatedEvicted, EventEvicted, now); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, lockedError(held, err)
		}
		live = live[1:]
	}

	// Another instance may hold the lock by now; inserting would break the limit.
	if err := lockLost(held); err != nil {
		return nil, err
	}

	attempts := 0
	if err := s.withStore(held, func(ctx context.Context) error {
		attempts++
		err := s.store.Create(ctx, sess)
		if errors.Is(err, ErrAlreadyExists) && attempts > 1 {
			// An earlier attempt may have timed out after the write landed.
			if existing, getErr := s.store.Get(ctx, sess.ID); getErr == nil && existing.CSRFToken == sess.CSRFToken {
				return nil
			}
		}
		return err
	}); err != nil {
		return nil, lockedError(held, err)
	}

	s.log.InfoContext(ctx, "session created",
		logger.UserID(sess.UserID),
		logger.SessionID(sess.ID),
		slog.String("device", sess.Metadata.DeviceType),
	)
	s.emit(ctx, Event{Type: EventCreated, Session: sess, At: now})

	return sess.Clone(), nil
}

func (s *Service) newSession(p CreateParams, now time.Time) (*Session, error) {
	id, err := generateToken()
	if err != nil {
		return nil, err
	}
	csrf, err := generateToken()
	if err != nil {
		return nil, err
	}

	ua := useragent.Parse(p.Client.UserAgent)

	return &Session{
		ID:              id,
		PublicID:        uuid.NewString(),
		UserID:          p.UserID,
		ExternalAuthRef: p.ExternalAuthRef,
		CreatedAt:       now,
		LastActivityAt:  now,
		ExpiresAt:       now.Add(s.cfg.sessionTTL()),
		IsActive:        true,
		Metadata: Metadata{
			IPAddress:   p.Client.IP,
			UserAgent:   p.Client.UserAgent,
			DeviceType:  ua.DeviceType,
			Browser:     ua.Browser,
			OS:          ua.OS,
			Fingerprint: fingerprint.Compute(p.Client.Attributes),
		},
		RequestCount:       1,
		RequestWindowStart: now,
		LastEndpoint:       p.Client.Endpoint,
		CSRFToken:          csrf,
	}, nil
}

// Validation is the outcome of a successful Validate call.
type Validation struct {
	Session *Session

	// Suspicious is true when the session is flagged, now or earlier.
	// The request may still proceed.
	Suspicious bool

	// IdleWarning is true once IdleWarningRatio of the idle timeout has
	// elapsed since the last refresh.
	IdleWarning bool
}

// Validate checks a presented session id and records the request against
// it. It returns ErrNotFound, ErrTerminated, ErrExpired or
// ErrServiceUnavailable on failure. Flagged sessions are still valid.
func (s *Service) Validate(ctx context.Context, id string, c Client) (*Validation, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	now := s.now()
	presented := fingerprint.Compute(c.Attributes)

	var (
		expired bool
		flagged string
	)
	sess, err := s.update(ctx, id, func(sess *Session) error {
		expired, flagged = false, ""

		if !sess.IsActive {
			return inactiveError(sess)
		}
		if sess.IsExpired(now) {
			sess.deactivate(TerminatedExpired, now)
			expired = true
			return nil
		}

		if !fingerprint.Match(sess.Metadata.Fingerprint, presented) && sess.flag(ReasonFingerprintMismatch, now) {
			flagged = ReasonFingerprintMismatch
		}

		if now.Sub(sess.RequestWindowStart) > s.cfg.RequestWindow {
			sess.RequestWindowStart = now
			sess.RequestCount = 1
		} else {
			sess.RequestCount++
		}
		if sess.RequestCount > s.cfg.SuspiciousRequestThreshold && sess.flag(ReasonHighRequestRate, now) {
			flagged = ReasonHighRequestRate
		}

		if c.Endpoint != "" {
			sess.LastEndpoint = c.Endpoint
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.log.InfoContext(ctx, "session expired", logger.UserID(sess.UserID), logger.SessionID(sess.ID))
		s.emit(ctx, Event{Type: EventExpired, Session: sess, Reason: TerminatedExpired, At: now})
		return nil, ErrExpired
	}

	if flagged != "" {
		s.log.WarnContext(ctx, "session flagged as suspicious",
			logger.UserID(sess.UserID),
			logger.SessionID(sess.ID),
			logger.Reason(flagged),
			slog.String("ip", c.IP),
		)
		s.emit(ctx, Event{Type: EventSuspicious, Session: sess, Reason: flagged, At: now})
	}

	return &Validation{
		Session:     sess,
		Suspicious:  sess.IsSuspicious,
		IdleWarning: now.Sub(sess.LastActivityAt) >= s.cfg.idleWarningAfter(),
	}, nil
}

// Refresh records user activity and extends the session, never past
// CreatedAt + AbsoluteTimeout.
func (s *Service) Refresh(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	now := s.now()
	var expired bool
	sess, err := s.update(ctx, id, func(sess *Session) error {
		expired = false

		if !sess.IsActive {
			return inactiveError(sess)
		}
		if sess.IsExpired(now) {
			sess.deactivate(TerminatedExpired, now)
			expired = true
			return nil
		}

		sess.LastActivityAt = now
		sess.ExpiresAt = s.expiryAt(sess.CreatedAt, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.emit(ctx, Event{Type: EventExpired, Session: sess, Reason: TerminatedExpired, At: now})
		return nil, ErrExpired
	}

	return sess, nil
}

func (s *Service) expiryAt(createdAt, activity time.Time) time.Time {
	idle := activity.Add(s.cfg.IdleTimeout)
	absolute := createdAt.Add(s.cfg.AbsoluteTimeout)
	if idle.Before(absolute) {
		return idle
	}
	return absolute
}

// Terminate deactivates a session. Terminating an inactive session is a
// no-op. An empty reason defaults to TerminatedLogout.
func (s *Service) Terminate(ctx context.Context, id, reason string) error {
	if id == "" {
		return ErrNotFound
	}
	if reason == "" {
		reason = TerminatedLogout
	}
	return s.deactivate(ctx, id, reason, EventTerminated, s.now())
}

// TerminateAll deactivates every active session of the user and returns how
// many were changed.
func (s *Service) TerminateAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrMissingUserID
	}

	held, unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrServiceUnavailable, fmt.Errorf("lock user sessions: %w", err))
	}
	defer unlock()

	var active []*Session
	if err := s.withStore(held, func(ctx context.Context) error {
		var err error
		active, err = s.store.ListActive(ctx, userID)
		return err
	}); err != nil {
		return 0, lockedError(held, err)
	}

	now := s.now()
	count := 0
	for _, a := range active {
		changed, err := s.deactivateOne(held, a.ID, TerminatedLogoutAll, EventTerminated, now)
		if err != nil {
			return count, lockedError(held, err)
		}
		if changed {
			count++
		}
	}

	s.log.InfoContext(ctx, "user sessions terminated", logger.UserID(userID), logger.Count(count))
	return count, nil
}

// ListActive returns the user's sessions that are active and not yet
// expired, oldest first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	var active []*Session
	if err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		active, err = s.store.ListActive(ctx, userID)
		return err
	}); err != nil {
		return nil, err
	}

	now := s.now()
	result := active[:0]
	for _, a := range active {
		if !a.IsExpired(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

// TerminateByPublicID revokes one of the user's own sessions by its public
// identifier. Sessions of other users are reported as ErrNotFound.
func (s *Service) TerminateByPublicID(ctx context.Context, userID, publicID string) error {
	active, err := s.ListActive(ctx, userID)
	if err != nil {
		return err
	}
	for _, a := range active {
		if a.PublicID == publicID {
			return s.Terminate(ctx, a.ID, TerminatedRevoked)
		}
	}
	return ErrNotFound
}

func (s *Service) deactivate(ctx context.Context, id, reason string, ev EventType, now time.Time) error {
	_, err := s.deactivateOne(ctx, id, reason, ev, now)
	return err
}

// deactivateOne reports whether this call performed the transition.
func (s *Service) deactivateOne(ctx context.Context, id, reason string, ev EventType, now time.Time) (bool, error) {
	sess, err := s.update(ctx, id, func(sess *Session) error {
		if !sess.deactivate(reason, now) {
			return errInactive
		}
		return nil
	})
	switch {
	case errors.Is(err, errInactive):
		return false, nil
	case err != nil:
		return false, err
	}

	s.log.InfoContext(ctx, "session deactivated",
		logger.UserID(sess.UserID),
		logger.SessionID(sess.ID),
		logger.Reason(reason),
	)
	s.emit(ctx, Event{Type: ev, Session: sess, Reason: reason, At: now})
	return true, nil
}

func (s *Service) emit(ctx context.Context, e Event) {
	for _, h := range s.hooks {
		h(ctx, Event{Type: e.Type, Session: e.Session.Clone(), Reason: e.Reason, At: e.At})
	}
}

// lockLost returns ErrServiceUnavailable once the per-user lock behind held
// is gone, either lost or abandoned with the caller's context.
func lockLost(held context.Context) error {
	if held.Err() == nil {
		return nil
	}
	return errors.Join(ErrServiceUnavailable, context.Cause(held))
}

// lockedError attaches the lock state to err so a store call cut short by a
// lost lock is reported as such.
func lockedError(held context.Context, err error) error {
	if lost := lockLost(held); lost != nil {
		return errors.Join(lost, err)
	}
	return err
}

func inactiveError(sess *Session) error {
	if sess.TerminationReason == TerminatedExpired {
		return ErrExpired
	}
	return ErrTerminated
}

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(ErrTokenGeneration, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
