package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/sessionguard/pkg/pg"
	"github.com/dmitrymomot/sessionguard/pkg/session"
	"github.com/dmitrymomot/sessionguard/pkg/session/pgstore"
	"github.com/dmitrymomot/sessionguard/pkg/session/storetest"
)

// connect returns a migrated pool with an empty sessions table. The tests
// are skipped unless PG_CONN_URL points at a disposable database.
func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_CONN_URL")
	if url == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     20,
		MaxIdleConns:     1,
		RetryAttempts:    1,
		RetryInterval:    time.Second,
		MigrationsTable:  "sessionguard_test_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, slog.New(slog.DiscardHandler), pgstore.Migrations, pgstore.MigrationsDir))
	_, err = pool.Exec(ctx, "TRUNCATE sessions")
	require.NoError(t, err)
	return pool
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) session.Store {
		return pgstore.New(connect(t))
	})
}

func TestStore_Unavailable(t *testing.T) {
	pool := connect(t)
	store := pgstore.New(pool)
	pool.Close()

	_, err := store.Get(context.Background(), "any")
	assert.ErrorIs(t, err, session.ErrStoreUnavailable)
}

func TestLocker(t *testing.T) {
	pool := connect(t)
	ctx := context.Background()
	l := pgstore.NewLocker(pool, "test:")

	t.Run("excludes other holders", func(t *testing.T) {
		var (
			wg     sync.WaitGroup
			inside atomic.Int32
			peak   atomic.Int32
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, unlock, err := l.Lock(ctx, "u1")
				require.NoError(t, err)
				n := inside.Add(1)
				if n > peak.Load() {
					peak.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, peak.Load())
	})

	t.Run("waiter gives up with context", func(t *testing.T) {
		_, unlock, err := l.Lock(ctx, "u2")
		require.NoError(t, err)
		defer unlock()

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, _, err = l.Lock(waitCtx, "u2")
		assert.Error(t, err)
	})

	t.Run("dropped connection cancels the holder", func(t *testing.T) {
		fast := pgstore.NewLocker(pool, "test:", pgstore.WithKeepAlive(20*time.Millisecond))
		held, unlock, err := fast.Lock(ctx, "u4")
		require.NoError(t, err)
		defer unlock()

		_, err = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_locks WHERE locktype = 'advisory' AND pid <> pg_backend_pid()`)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return held.Err() != nil }, 2*time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, context.Cause(held), session.ErrLockLost)
	})

	t.Run("unlock is idempotent", func(t *testing.T) {
		held, unlock, err := l.Lock(ctx, "u3")
		require.NoError(t, err)
		require.NoError(t, held.Err())
		unlock()
		unlock()
		assert.ErrorIs(t, held.Err(), context.Canceled)

		_, unlock, err = l.Lock(ctx, "u3")
		require.NoError(t, err)
		unlock()
	})
}
