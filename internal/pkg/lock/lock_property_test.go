// Package lock provides keyed locking used to serialize balance
// mutations per user and move submissions per match.
package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// Concurrent read-modify-write cycles under the same key must produce
// the sequential result.
func TestConcurrentMutationSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(1000, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")

		deltas := make([]int64, numOps)
		expected := initial
		for i := range deltas {
			deltas[i] = rapid.Int64Range(-500, 500).Draw(t, "delta")
			expected += deltas[i]
		}

		kl := NewKeyedLock()
		balance := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, d := range deltas {
			go func(delta int64) {
				defer wg.Done()
				kl.Lock(key)
				defer kl.Unlock(key)
				balance += delta
			}(d)
		}
		wg.Wait()

		if balance != expected {
			t.Fatalf("balance %d, want %d (initial %d, %d ops)", balance, expected, initial, numOps)
		}
	})
}

// WithLock serializes closures the same way explicit Lock/Unlock does.
func TestWithLockSerializationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		perOp := rapid.Int64Range(1, 100).Draw(t, "perOp")
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")

		kl := NewKeyedLock()
		var counter int64

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					counter += perOp
					return nil
				})
			}()
		}
		wg.Wait()

		if counter != int64(numOps)*perOp {
			t.Fatalf("counter %d, want %d", counter, int64(numOps)*perOp)
		}
	})
}

// Two settlements touching the same pair of users in either order must
// not deadlock, and both closures must run.
func TestWithLockPairNoDeadlockProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Int64Range(1, 1000).Draw(t, "a")
		b := rapid.Int64Range(1001, 2000).Draw(t, "b")
		numPairs := rapid.IntRange(2, 20).Draw(t, "numPairs")

		kl := NewKeyedLock()
		var ran atomic.Int32

		var wg sync.WaitGroup
		wg.Add(numPairs)
		for i := 0; i < numPairs; i++ {
			first, second := a, b
			if i%2 == 1 {
				first, second = b, a
			}
			go func(x, y int64) {
				defer wg.Done()
				_ = kl.WithLockPair(x, y, func() error {
					ran.Add(1)
					return nil
				})
			}(first, second)
		}
		wg.Wait()

		if int(ran.Load()) != numPairs {
			t.Fatalf("%d closures ran, want %d", ran.Load(), numPairs)
		}
		if kl.IsLocked(a) || kl.IsLocked(b) {
			t.Fatal("locks held after all pairs completed")
		}
	})
}

// WithLockPair with equal keys must not self-deadlock.
func TestWithLockPairSameKeyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		kl := NewKeyedLock()

		ran := false
		if err := kl.WithLockPair(key, key, func() error {
			ran = true
			return nil
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ran {
			t.Fatal("closure did not run")
		}
		if kl.IsLocked(key) {
			t.Fatal("lock held after completion")
		}
	})
}

// Different keys never block each other.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		kl := NewKeyedLock()
		counters := make([]int64, numKeys)

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for k := 0; k < numKeys; k++ {
			for j := 0; j < opsPerKey; j++ {
				go func(idx int) {
					defer wg.Done()
					key := int64(idx + 1)
					kl.Lock(key)
					defer kl.Unlock(key)
					counters[idx] += 10
				}(k)
			}
		}
		wg.Wait()

		for k := 0; k < numKeys; k++ {
			if counters[k] != int64(opsPerKey)*10 {
				t.Fatalf("key %d counter %d, want %d", k+1, counters[k], int64(opsPerKey)*10)
			}
		}
	})
}

// At most one TryLock wins at a time, and the lock is free once every
// winner releases.
func TestTryLockExclusivityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		kl := NewKeyedLock()
		var successes atomic.Int32

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(numAttempts)
		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-start
				if kl.TryLock(key) {
					successes.Add(1)
					kl.Unlock(key)
				}
			}()
		}
		close(start)
		wg.Wait()

		if successes.Load() < 1 {
			t.Fatalf("no TryLock succeeded out of %d attempts", numAttempts)
		}
		if !kl.TryLock(key) {
			t.Fatal("lock should be free after all attempts completed")
		}
		kl.Unlock(key)
	})
}

// Every Lock paired with an Unlock leaves the key available.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.Int64Range(1, 1000000).Draw(t, "key")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		kl := NewKeyedLock()
		for i := 0; i < numCycles; i++ {
			kl.Lock(key)
			kl.Unlock(key)
		}

		if !kl.TryLock(key) {
			t.Fatal("lock should be available after symmetric cycles")
		}
		kl.Unlock(key)
	})
}
