// Package gmutex implements spec.md §4.J's cross-isolate mutex: a
// single synchronization word in a shared buffer, acquired and
// released with atomic compare-and-swap. Go exposes no portable
// cross-process futex wait/notify, so — per the Open Question (iii)
// resolution recorded in SPEC_FULL.md — acquire falls back to a
// bounded spin followed by exponential backoff instead of true
// blocking wait.
package gmutex

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"spawnkit/internal/errs"
	"spawnkit/internal/shmem"
)

const (
	unlocked int32 = 0
	locked   int32 = 1

	spinAttempts = 200
	minBackoff   = 200 * time.Microsecond
	maxBackoff   = 10 * time.Millisecond
)

// Mutex is the location-keyed cross-isolate lock. Every isolate that
// resolves the same construction site shares the same backing word.
type Mutex struct {
	buf *shmem.Buffer
}

// Wrap binds a Mutex to the state buffer registered at key, creating it
// in the unlocked state if this is the first isolate to construct it.
func Wrap(reg *shmem.Registry, key string) (*Mutex, error) {
	buf, err := reg.GetOrCreate(key, 4)
	if err != nil {
		return nil, errs.Wrap(errs.CodeSharedMemory, "gmutex", "Wrap", err)
	}
	return &Mutex{buf: buf}, nil
}

// TryLock attempts a single non-blocking acquire.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapInt32(m.buf.Word32(0), unlocked, locked)
}

// Lock blocks until the mutex is acquired or ctx is done. It spins
// briefly for the common low-contention case, then backs off with
// jitter to avoid pegging a CPU core polling shared memory.
func (m *Mutex) Lock(ctx context.Context) error {
	for i := 0; i < spinAttempts; i++ {
		if m.TryLock() {
			return nil
		}
	}
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.CodeShutdown, "gmutex", "Lock", ctx.Err())
		default:
		}
		if m.TryLock() {
			return nil
		}
		jitter := time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-time.After(backoff/2 + jitter/2):
		case <-ctx.Done():
			return errs.Wrap(errs.CodeShutdown, "gmutex", "Lock", ctx.Err())
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// Unlock releases the mutex. Unlocking a mutex this isolate does not
// hold is an invariant violation (spec.md §6), not a silent no-op.
func (m *Mutex) Unlock() error {
	if !atomic.CompareAndSwapInt32(m.buf.Word32(0), locked, unlocked) {
		return errs.New(errs.CodeInvariantViolation, "gmutex", "Unlock", "unlock of a mutex that was not held")
	}
	return nil
}

// Guard holds a locked Mutex and releases it exactly once.
type Guard struct {
	m        *Mutex
	released int32
}

// LockGuard acquires m and returns a Guard whose Release is safe to
// call multiple times or defer unconditionally.
func LockGuard(ctx context.Context, m *Mutex) (*Guard, error) {
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	return &Guard{m: m}, nil
}

// Release unlocks the underlying mutex on its first call; subsequent
// calls are no-ops, making it safe to defer.
func (g *Guard) Release() error {
	if !atomic.CompareAndSwapInt32(&g.released, 0, 1) {
		return nil
	}
	return g.m.Unlock()
}
