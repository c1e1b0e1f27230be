package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

const (
	lockQuery   = `SELECT pg_advisory_lock(hashtextextended($1, 0))`
	unlockQuery = `SELECT pg_advisory_unlock(hashtextextended($1, 0))`
)

// keepAlive is how often a held lock's connection is pinged. The server
// drops advisory locks with the session that took them.
const keepAlive = 2 * time.Second

// Locker is a session.Locker built on PostgreSQL advisory locks. Each held
// lock pins one pooled connection until it is released.
type Locker struct {
	pool      *pgxpool.Pool
	prefix    string
	keepAlive time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithKeepAlive sets how often a held lock's connection is pinged.
func WithKeepAlive(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.keepAlive = d
		}
	}
}

// NewLocker creates a Locker. Keys are namespaced with prefix so other
// advisory lock users of the same database do not collide.
func NewLocker(pool *pgxpool.Pool, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{pool: pool, prefix: prefix, keepAlive: keepAlive}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until the lock is acquired or ctx is done. The held context
// is cancelled with session.ErrLockLost if the pinned connection stops
// answering, since the lock may already be gone with it.
func (l *Locker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, mapError(err)
	}

	lockKey := l.prefix + key
	if _, err := conn.Exec(ctx, lockQuery, lockKey); err != nil {
		// A cancelled wait may leave the connection in an unknown state.
		_ = conn.Conn().Close(context.WithoutCancel(ctx))
		conn.Release()
		return nil, nil, mapError(err)
	}

	// A failed ping counts as a lost lock straight away.
	held, stop := session.HoldLease(ctx, time.Now(), 3*l.keepAlive, func(ctx context.Context) (bool, error) {
		return conn.Ping(ctx) == nil, nil
	})

	var once sync.Once
	return held, func() {
		once.Do(func() {
			stop()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if _, err := conn.Exec(ctx, unlockQuery, lockKey); err != nil {
				// Closing the session drops every advisory lock it holds.
				_ = conn.Conn().Close(ctx)
			}
			conn.Release()
		})
	}, nil
}

var _ session.Locker = (*Locker)(nil)
