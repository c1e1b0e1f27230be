package redisstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

// releaseScript deletes the lock only if it is still held by this owner.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// renewScript extends the lock only if it is still held by this owner.
var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Locker is a session.Locker shared by every instance using the same Redis.
// A lock is a lease: it expires after TTL so a crashed holder cannot block a
// user forever, and it is renewed every TTL/3 while held.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockTTL bounds how long a lock survives a holder that stopped renewing it.
func WithLockTTL(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithPollInterval sets how often a waiting caller retries.
func WithPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// NewLocker creates a Locker with a 10s TTL. Keys are namespaced with prefix.
func NewLocker(client redis.UniversalClient, prefix string, opts ...LockerOption) *Locker {
	l := &Locker{
		client: client,
		prefix: prefix,
		ttl:    10 * time.Second,
		poll:   20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock blocks until the lock is acquired or ctx is done. The held context
// is cancelled with session.ErrLockLost if the lease lapses or is taken over.
func (l *Locker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	token, err := lockToken()
	if err != nil {
		return nil, nil, err
	}
	lockKey := l.lockKey(key)

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	var acquired time.Time
	for {
		acquired = time.Now()
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, nil, mapError(err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
	}

	held, stop := session.HoldLease(ctx, acquired, l.ttl, func(ctx context.Context) (bool, error) {
		n, err := renewScript.Run(ctx, l.client, []string{lockKey}, token, l.ttl.Milliseconds()).Int64()
		if err != nil {
			return false, mapError(err)
		}
		return n == 1, nil
	})

	var once sync.Once
	return held, func() {
		once.Do(func() {
			stop()
			// The lock expires on its own if release fails.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
		})
	}, nil
}

// lockKey carries its own hash tag so locks of different users spread
// across cluster slots.
func (l *Locker) lockKey(key string) string {
	return l.prefix + "lock:{" + key + "}"
}

func lockToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(session.ErrTokenGeneration, fmt.Errorf("lock token: %w", err))
	}
	return hex.EncodeToString(b), nil
}

var _ session.Locker = (*Locker)(nil)
