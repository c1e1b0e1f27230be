package mongostore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

// DefaultLockCollection is used when NewLocker is given an empty name.
const DefaultLockCollection = "session_locks"

// Locker is a session.Locker backed by a collection of lease documents.
// A lease is a document whose _id is the lock key; the unique primary key
// makes acquisition atomic. Leases carry an expiry so a crashed holder
// cannot block a user forever, and are extended every TTL/3 while held.
type Locker struct {
	coll *mongo.Collection
	ttl  time.Duration
	poll time.Duration
	now  func() time.Time
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockTTL bounds how long a lease survives a holder that stopped renewing it.
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

// NewLocker creates a Locker with a 10s TTL on the given collection, or
// DefaultLockCollection when it is empty.
func NewLocker(db *mongo.Database, collection string, opts ...LockerOption) *Locker {
	if collection == "" {
		collection = DefaultLockCollection
	}
	l := &Locker{
		coll: db.Collection(collection),
		ttl:  10 * time.Second,
		poll: 20 * time.Millisecond,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureIndexes adds a TTL index so abandoned leases are eventually removed
// by the server as well.
func (l *Locker) EnsureIndexes(ctx context.Context) error {
	_, err := l.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return mapError(err)
}

// Lock blocks until the lease is acquired or ctx is done. The held context
// is cancelled with session.ErrLockLost if the lease lapses or is taken over.
func (l *Locker) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	token, err := leaseToken()
	if err != nil {
		return nil, nil, err
	}

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	var acquired time.Time
	for {
		acquired = time.Now()
		ok, err := l.tryAcquire(ctx, key, token)
		if err != nil {
			return nil, nil, err
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
		return l.renew(ctx, key, token)
	})

	var once sync.Once
	return held, func() {
		once.Do(func() {
			stop()
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_, _ = l.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}, {Key: "owner", Value: token}})
		})
	}, nil
}

// renew pushes the expiry of a lease this owner still holds.
func (l *Locker) renew(ctx context.Context, key, token string) (bool, error) {
	res, err := l.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: key}, {Key: "owner", Value: token}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "expires_at", Value: l.now().UTC().Add(l.ttl)}}}},
	)
	if err != nil {
		return false, mapError(err)
	}
	return res.MatchedCount == 1, nil
}

func (l *Locker) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	now := l.now().UTC()

	// Drop a lease whose holder let it lapse.
	if _, err := l.coll.DeleteOne(ctx, bson.D{
		{Key: "_id", Value: key},
		{Key: "expires_at", Value: bson.D{{Key: "$lte", Value: now}}},
	}); err != nil {
		return false, mapError(err)
	}

	_, err := l.coll.InsertOne(ctx, bson.D{
		{Key: "_id", Value: key},
		{Key: "owner", Value: token},
		{Key: "expires_at", Value: now.Add(l.ttl)},
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func leaseToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Join(session.ErrTokenGeneration, fmt.Errorf("lease token: %w", err))
	}
	return hex.EncodeToString(b), nil
}

var _ session.Locker = (*Locker)(nil)
