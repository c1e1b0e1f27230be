package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockLost is the cancellation cause of a held context whose lock could
// no longer be guaranteed.
var ErrLockLost = errors.New("session.lock_lost")

// Locker serializes operations that span several records of one user.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned context is
	// derived from ctx and is cancelled on unlock, or earlier if the lock is
	// lost. Work that relies on exclusion must run under it.
	// Unlock must be called exactly once.
	Lock(ctx context.Context, key string) (held context.Context, unlock func(), err error)
}

// KeyedMutex is an in-process Locker with one mutex per key. Entries are
// dropped once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free or ctx is done. An in-process lock is never
// lost, so the held context only ends with ctx or on unlock.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (context.Context, func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, nil, ctx.Err()
	}

	held, cancel := context.WithCancel(ctx)
	var once sync.Once
	return held, func() {
		once.Do(func() {
			cancel()
			<-l.ch
			k.release(key, l)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// HoldLease keeps a lease of length ttl alive from acquired on. renew is
// called every ttl/3; it extends the lease and reports false once someone
// else owns it. The returned context is cancelled with ErrLockLost when the
// lease is taken over, or when renewals keep failing until less than one
// renewal interval of the last confirmed lease is left. stop ends renewal
// and cancels the context; it does not release the lease.
func HoldLease(ctx context.Context, acquired time.Time, ttl time.Duration, renew func(context.Context) (bool, error)) (held context.Context, stop func()) {
	held, cancel := context.WithCancelCause(ctx)
	interval := max(ttl/3, time.Millisecond)
	quit := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		validUntil := acquired.Add(ttl)
		for {
			select {
			case <-quit:
				return
			case <-held.Done():
				return
			case <-ticker.C:
			}

			started := time.Now()
			renewCtx, renewCancel := context.WithTimeout(context.WithoutCancel(held), interval)
			ok, err := renew(renewCtx)
			renewCancel()

			switch {
			case err == nil && ok:
				validUntil = started.Add(ttl)
			case err == nil:
				cancel(ErrLockLost)
				return
			case time.Until(validUntil) <= interval:
				cancel(errors.Join(ErrLockLost, err))
				return
			}
		}
	}()

	var once sync.Once
	return held, func() {
		once.Do(func() {
			close(quit)
			<-exited
			cancel(context.Canceled)
		})
	}
}
