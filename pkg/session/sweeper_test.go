package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

func TestSweeper_Sweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemoryStore()
	svc, clock := setupService(t, store)

	loggedOut, err := svc.Create(ctx, session.CreateParams{UserID: "u1", Client: laptop})
	require.NoError(t, err)
	lapsed, err := svc.Create(ctx, session.CreateParams{UserID: "u2", Client: laptop})
	require.NoError(t, err)
	require.NoError(t, svc.Terminate(ctx, loggedOut.ID, ""))

	clock.Advance(2 * time.Hour)
	live, err := svc.Create(ctx, session.CreateParams{UserID: "u3", Client: laptop})
	require.NoError(t, err)

	sweeper := session.NewSweeper(store, svc.Config(), session.WithSweeperClock(clock.Now))

	n, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "records are retained for the grace period")

	clock.Advance(23 * time.Hour)
	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{loggedOut.ID, lapsed.ID} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, session.ErrNotFound)
	}
	_, err = store.Get(ctx, live.ID)
	assert.NoError(t, err)

	n, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "sweeping is idempotent")
}

type failingListStore struct {
	*session.MemoryStore
}

func (failingListStore) ListExpiredBefore(context.Context, time.Time) ([]string, error) {
	return nil, errors.Join(session.ErrStoreUnavailable, errors.New("connection refused"))
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()

	t.Run("stops with context", func(t *testing.T) {
		t.Parallel()
		cfg := session.DefaultConfig()
		cfg.CleanupInterval = 5 * time.Millisecond
		sweeper := session.NewSweeper(failingListStore{session.NewMemoryStore()}, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- sweeper.Run(ctx) }()

		select {
		case err := <-done:
			assert.NoError(t, err, "sweep failures are logged, not returned")
		case <-time.After(2 * time.Second):
			t.Fatal("sweeper did not stop")
		}
	})

	t.Run("sweep error wraps store error", func(t *testing.T) {
		t.Parallel()
		sweeper := session.NewSweeper(failingListStore{session.NewMemoryStore()}, session.DefaultConfig())
		_, err := sweeper.Sweep(context.Background())
		assert.ErrorIs(t, err, session.ErrStoreUnavailable)
	})
}
