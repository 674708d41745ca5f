// Package sync provides the synchronization primitives shared by interrupt
// handlers and normal kernel code: spinlocks and a single-producer,
// single-consumer ring buffer.
package sync

import (
	"sync/atomic"

	"kcore/kernel/cpu"
)

// attemptsBeforeYielding defines how many failed acquisition attempts a
// spinning task makes before invoking yieldFn.
const attemptsBeforeYielding = 64

var (
	// yieldFn is invoked while spinning on a contended lock. The kernel has
	// no scheduler so it is nil and acquisition is a pure busy-wait; tests
	// replace it with runtime.Gosched.
	yieldFn func()
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state atomic.Bool
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	acquireSpinlock(&l.state, attemptsBeforeYielding)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return l.state.CompareAndSwap(false, true)
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	l.state.Store(false)
}

func acquireSpinlock(state *atomic.Bool, attemptsBeforeYielding uint32) {
	for attempts := uint32(0); !state.CompareAndSwap(false, true); attempts++ {
		if attempts == attemptsBeforeYielding {
			if yieldFn != nil {
				yieldFn()
			}
			attempts = 0
		}
	}
}

// SpinLock guards a value of type T with a Spinlock. The value can only be
// accessed through the guard returned by Lock, LockIRQ or TryLock.
//
// A SpinLock must not be copied after first use.
type SpinLock[T any] struct {
	lock  Spinlock
	value T
}

// NewSpinLock returns a SpinLock that owns value.
func NewSpinLock[T any](value T) *SpinLock[T] {
	return &SpinLock[T]{value: value}
}

// SpinLockGuard grants exclusive access to the value owned by a SpinLock.
// Unlock must be called exactly once when the critical section ends.
type SpinLockGuard[T any] struct {
	owner      *SpinLock[T]
	restoreIRQ bool
}

// Lock busy-waits until the lock is acquired and returns a guard for the
// owned value. There is no bound on the wait, no fairness and no detection of
// recursive acquisition.
//
// Code that can also be reached from an interrupt handler must use LockIRQ
// instead; otherwise the handler could spin forever on a lock held by the
// context it interrupted.
func (l *SpinLock[T]) Lock() SpinLockGuard[T] {
	l.lock.Acquire()
	return SpinLockGuard[T]{owner: l}
}

// LockIRQ disables interrupt handling and then acquires the lock. The
// previous interrupt state is restored by the guard's Unlock method.
func (l *SpinLock[T]) LockIRQ() SpinLockGuard[T] {
	wasEnabled := cpu.SaveAndDisableInterrupts()
	l.lock.Acquire()
	return SpinLockGuard[T]{owner: l, restoreIRQ: wasEnabled}
}

// TryLock attempts to acquire the lock without spinning. The returned guard is
// only valid if the second return value is true.
func (l *SpinLock[T]) TryLock() (SpinLockGuard[T], bool) {
	if !l.lock.TryToAcquire() {
		return SpinLockGuard[T]{}, false
	}
	return SpinLockGuard[T]{owner: l}, true
}

// Value returns a pointer to the guarded value. The pointer must not be
// retained after Unlock.
func (g SpinLockGuard[T]) Value() *T {
	return &g.owner.value
}

// Unlock releases the lock and, for guards obtained via LockIRQ, restores the
// interrupt state that was active before the lock was acquired.
func (g SpinLockGuard[T]) Unlock() {
	g.owner.lock.Release()
	cpu.RestoreInterrupts(g.restoreIRQ)
}
