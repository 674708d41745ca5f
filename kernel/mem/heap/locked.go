package heap

import "kcore/kernel/sync"

// LockedAllocator serializes access to a FreeListAllocator. Interrupts are
// disabled while the lock is held so that interrupt handlers may allocate
// without deadlocking against the code they interrupted.
type LockedAllocator struct {
	lock *sync.SpinLock[*FreeListAllocator]
}

// NewLockedAllocator returns a LockedAllocator guarding a.
func NewLockedAllocator(a *FreeListAllocator) *LockedAllocator {
	return &LockedAllocator{lock: sync.NewSpinLock(a)}
}

// Allocate implements Allocator.
func (l *LockedAllocator) Allocate(size, align uint32) uintptr {
	guard := l.lock.LockIRQ()
	defer guard.Unlock()
	return (*guard.Value()).Allocate(size, align)
}

// Deallocate implements Allocator.
func (l *LockedAllocator) Deallocate(ptr uintptr, size, align uint32) {
	guard := l.lock.LockIRQ()
	defer guard.Unlock()
	(*guard.Value()).Deallocate(ptr, size, align)
}

// Stats returns the statistics of the guarded allocator.
func (l *LockedAllocator) Stats() Stats {
	guard := l.lock.LockIRQ()
	defer guard.Unlock()
	return (*guard.Value()).Stats()
}

var (
	_ Allocator = (*FreeListAllocator)(nil)
	_ Allocator = (*LockedAllocator)(nil)
)
