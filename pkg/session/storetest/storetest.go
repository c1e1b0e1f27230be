// Package storetest is a conformance suite for session.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

// Factory returns an empty store. Cleanup should be registered on t.
type Factory func(t *testing.T) session.Store

// base is truncated to milliseconds, the coarsest precision among the
// supported back-ends.
var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// NewSession builds an active session for userID created at offset from a
// fixed reference time.
func NewSession(userID string, offset time.Duration) *session.Session {
	created := base.Add(offset)
	return &session.Session{
		ID:                 uuid.NewString(),
		PublicID:           uuid.NewString(),
		UserID:             userID,
		CreatedAt:          created,
		LastActivityAt:     created,
		ExpiresAt:          created.Add(30 * time.Minute),
		IsActive:           true,
		RequestCount:       1,
		RequestWindowStart: created,
		CSRFToken:          uuid.NewString(),
		Metadata: session.Metadata{
			IPAddress:   "192.0.2.10",
			UserAgent:   "Mozilla/5.0",
			DeviceType:  "desktop",
			Browser:     "Firefox",
			OS:          "Linux",
			Fingerprint: "v1:00112233445566778899aabbccddeeff",
		},
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		s.ExternalAuthRef = "idp-session-1"
		s.LastEndpoint = "GET /"

		require.NoError(t, store.Create(ctx, s))

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		AssertSessionEqual(t, s, got)
		assert.Positive(t, got.Version)
	})

	t.Run("create duplicate", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		require.NoError(t, store.Create(ctx, s))
		assert.ErrorIs(t, store.Create(ctx, s.Clone()), session.ErrAlreadyExists)
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("update applies mutation", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		require.NoError(t, store.Create(ctx, s))
		before, err := store.Get(ctx, s.ID)
		require.NoError(t, err)

		flaggedAt := base.Add(time.Minute)
		updated, err := store.Update(ctx, s.ID, func(s *session.Session) error {
			s.RequestCount = 7
			s.IsSuspicious = true
			s.SuspiciousReason = session.ReasonHighRequestRate
			s.SuspiciousAt = &flaggedAt
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, updated.RequestCount)
		assert.Greater(t, updated.Version, before.Version)

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.RequestCount)
		assert.True(t, got.IsSuspicious)
		require.NotNil(t, got.SuspiciousAt)
		assert.True(t, flaggedAt.Equal(*got.SuspiciousAt))
		assert.Equal(t, updated.Version, got.Version)
	})

	t.Run("update aborted by mutation error", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		require.NoError(t, store.Create(ctx, s))

		abort := errors.New("abort")
		_, err := store.Update(ctx, s.ID, func(s *session.Session) error {
			s.RequestCount = 99
			return abort
		})
		assert.ErrorIs(t, err, abort)

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.RequestCount)
	})

	t.Run("update missing", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Update(ctx, "missing", func(*session.Session) error { return nil })
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("update detects concurrent write", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		require.NoError(t, store.Create(ctx, s))

		_, err := store.Update(ctx, s.ID, func(outer *session.Session) error {
			_, err := store.Update(ctx, s.ID, func(inner *session.Session) error {
				inner.RequestCount = 2
				return nil
			})
			require.NoError(t, err)
			outer.RequestCount = 100
			return nil
		})
		assert.ErrorIs(t, err, session.ErrConflict)

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RequestCount)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		require.NoError(t, store.Create(ctx, s))

		const workers = 20
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					_, err := store.Update(ctx, s.ID, func(s *session.Session) error {
						s.RequestCount++
						return nil
					})
					if errors.Is(err, session.ErrConflict) {
						continue
					}
					errs <- err
					return
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1+workers, got.RequestCount)
	})

	t.Run("list active ordering", func(t *testing.T) {
		store := newStore(t)
		user := uuid.NewString()

		s3 := NewSession(user, 3*time.Minute)
		s1 := NewSession(user, time.Minute)
		tieA := NewSession(user, 2*time.Minute)
		tieB := NewSession(user, 2*time.Minute)
		tieA.ID, tieB.ID = "aaa-"+tieA.ID, "bbb-"+tieB.ID
		inactive := NewSession(user, 0)
		other := NewSession(uuid.NewString(), 0)

		for _, s := range []*session.Session{s3, tieB, s1, inactive, tieA, other} {
			require.NoError(t, store.Create(ctx, s))
		}
		_, err := store.Update(ctx, inactive.ID, func(s *session.Session) error {
			now := base.Add(5 * time.Minute)
			s.IsActive = false
			s.TerminatedAt = &now
			s.TerminationReason = session.TerminatedLogout
			return nil
		})
		require.NoError(t, err)

		active, err := store.ListActive(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, []string{s1.ID, tieA.ID, tieB.ID, s3.ID}, ids(active))

		empty, err := store.ListActive(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		s := NewSession(uuid.NewString(), 0)
		require.NoError(t, store.Create(ctx, s))

		require.NoError(t, store.Delete(ctx, s.ID))
		require.NoError(t, store.Delete(ctx, s.ID), "delete is idempotent")

		_, err := store.Get(ctx, s.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)

		active, err := store.ListActive(ctx, s.UserID)
		require.NoError(t, err)
		assert.Empty(t, active)

		expired, err := store.ListExpiredBefore(ctx, base.Add(24*time.Hour))
		require.NoError(t, err)
		assert.NotContains(t, expired, s.ID)
	})

	t.Run("list expired before", func(t *testing.T) {
		store := newStore(t)
		user := uuid.NewString()

		lapsed := NewSession(user, 0) // expires at +30m
		fresh := NewSession(user, time.Hour)
		terminated := NewSession(user, time.Hour)
		for _, s := range []*session.Session{lapsed, fresh, terminated} {
			require.NoError(t, store.Create(ctx, s))
		}
		_, err := store.Update(ctx, terminated.ID, func(s *session.Session) error {
			at := base.Add(61 * time.Minute)
			s.IsActive = false
			s.TerminatedAt = &at
			s.TerminationReason = session.TerminatedLogout
			return nil
		})
		require.NoError(t, err)

		got, err := store.ListExpiredBefore(ctx, base.Add(45*time.Minute))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{lapsed.ID}, got)

		got, err = store.ListExpiredBefore(ctx, base.Add(62*time.Minute))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{lapsed.ID, terminated.ID}, got)

		got, err = store.ListExpiredBefore(ctx, base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{lapsed.ID, terminated.ID, fresh.ID}, got)
	})
}

// AssertSessionEqual compares two sessions ignoring Version and time zones.
func AssertSessionEqual(t *testing.T, want, got *session.Session) {
	t.Helper()
	require.NotNil(t, got)

	w, g := want.Clone(), got.Clone()
	for _, pair := range [][2]*time.Time{
		{&w.CreatedAt, &g.CreatedAt},
		{&w.LastActivityAt, &g.LastActivityAt},
		{&w.ExpiresAt, &g.ExpiresAt},
		{&w.RequestWindowStart, &g.RequestWindowStart},
	} {
		assert.True(t, pair[0].Equal(*pair[1]), fmt.Sprintf("time mismatch: want %s, got %s", pair[0], pair[1]))
		*pair[0], *pair[1] = time.Time{}, time.Time{}
	}
	assert.Equal(t, w.TerminatedAt == nil, g.TerminatedAt == nil)
	assert.Equal(t, w.SuspiciousAt == nil, g.SuspiciousAt == nil)
	w.TerminatedAt, g.TerminatedAt = nil, nil
	w.SuspiciousAt, g.SuspiciousAt = nil, nil
	w.Version, g.Version = 0, 0

	assert.Equal(t, w, g)
}

func ids(sessions []*session.Session) []string {
	out := make([]string, len(sessions))
	for i, s := range sessions {
		out[i] = s.ID
	}
	return out
}
