// Package lock provides keyed locking used to serialize balance
// mutations per user and move submissions per match.
package lock

import (
	"context"
	"sync"
	"time"
)

// entry wraps a mutex stored in the registry.
type entry struct {
	mu sync.Mutex
}

// KeyedLock provides per-key mutual exclusion. Match orchestration locks
// the match id so two racing move submissions cannot both validate against
// the same pre-move state; the ledger locks user ids so concurrent wagers
// by the same user cannot pass a balance check against a stale read.
type KeyedLock struct {
	locks sync.Map // map[int64]*entry
	pool  sync.Pool
}

// NewKeyedLock creates a new KeyedLock instance.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{
		pool: sync.Pool{
			New: func() any {
				return &entry{}
			},
		},
	}
}

// get retrieves or creates the mutex for the given key.
func (kl *KeyedLock) get(key int64) *entry {
	if v, ok := kl.locks.Load(key); ok {
		return v.(*entry)
	}

	fresh := kl.pool.Get().(*entry)
	actual, loaded := kl.locks.LoadOrStore(key, fresh)
	if loaded {
		// Another goroutine stored one first, return ours to the pool.
		kl.pool.Put(fresh)
	}
	return actual.(*entry)
}

// Lock acquires the lock for a key.
func (kl *KeyedLock) Lock(key int64) {
	kl.get(key).mu.Lock()
}

// Unlock releases the lock for a key.
func (kl *KeyedLock) Unlock(key int64) {
	if v, ok := kl.locks.Load(key); ok {
		v.(*entry).mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired.
func (kl *KeyedLock) TryLock(key int64) bool {
	return kl.get(key).mu.TryLock()
}

// LockWithTimeout attempts to acquire the lock within timeout.
// Returns false if the timeout elapsed first; the pending acquisition is
// released as soon as it eventually succeeds.
func (kl *KeyedLock) LockWithTimeout(ctx context.Context, key int64, timeout time.Duration) bool {
	e := kl.get(key)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		go func() {
			<-done
			e.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the key's lock.
func (kl *KeyedLock) WithLock(key int64, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockPair executes fn while holding both keys' locks. Keys are
// acquired in ascending order so two settlements touching the same pair
// of users cannot deadlock each other.
func (kl *KeyedLock) WithLockPair(a, b int64, fn func() error) error {
	if a == b {
		return kl.WithLock(a, fn)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	kl.Lock(first)
	defer kl.Unlock(first)
	kl.Lock(second)
	defer kl.Unlock(second)
	return fn()
}

// IsLocked checks if a key currently has an active lock.
// This is a point-in-time check and may change immediately after.
func (kl *KeyedLock) IsLocked(key int64) bool {
	if v, ok := kl.locks.Load(key); ok {
		e := v.(*entry)
		if e.mu.TryLock() {
			e.mu.Unlock()
			return false
		}
		return true
	}
	return false
}
