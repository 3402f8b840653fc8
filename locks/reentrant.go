package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/petermattis/goid"

	"github.com/kolkov/queuedsync/aqs"
)

// ReentrantLock is a mutual exclusion lock owned by the goroutine that
// acquired it. The owner may acquire it again; it is released when Unlock
// has been called as many times as it was acquired.
//
// A nonfair lock lets an arriving goroutine take a free lock ahead of
// queued ones, which gives higher throughput. A fair lock grants the lock
// to the longest-waiting goroutine. TryLock barges in both modes.
//
// ReentrantLock implements sync.Locker.
//
// Thread Safety: All methods are safe for concurrent calls. Unlock and the
// condition methods must be called by the owner.
type ReentrantLock struct {
	sync *aqs.Synchronizer
	fair bool
}

// reentrantPolicy keeps the hold count in the state word and the owner in
// the synchronizer's owner slot.
type reentrantPolicy struct {
	aqs.Unsupported
	fair bool
}

func (p reentrantPolicy) TryAcquire(s *aqs.Synchronizer, acquires int32) bool {
	current := goid.Get()
	c := s.State()
	if c == 0 {
		if p.fair && s.HasQueuedPredecessors() {
			return false
		}
		if s.CompareAndSetState(0, acquires) {
			s.SetExclusiveOwner(current)
			return true
		}
		return false
	}
	if s.ExclusiveOwner() == current {
		next := c + acquires
		if next < 0 {
			panic(ErrHoldCountOverflow)
		}
		s.SetState(next)
		return true
	}
	return false
}

func (reentrantPolicy) TryRelease(s *aqs.Synchronizer, releases int32) bool {
	if s.ExclusiveOwner() != goid.Get() {
		aqs.IllegalState("Unlock", "lock not held by caller")
	}
	c := s.State() - releases
	free := c == 0
	if free {
		s.SetExclusiveOwner(0)
	}
	s.SetState(c)
	return free
}

func (reentrantPolicy) IsHeldExclusively(s *aqs.Synchronizer) bool {
	return s.ExclusiveOwner() == goid.Get()
}

// NewReentrantLock creates an unlocked lock with the given fairness.
func NewReentrantLock(fair bool) *ReentrantLock {
	return NewReentrantLockWithOptions(fair, aqs.Options{})
}

// NewReentrantLockWithOptions is NewReentrantLock with synchronizer options.
func NewReentrantLockWithOptions(fair bool, opts aqs.Options) *ReentrantLock {
	return &ReentrantLock{
		sync: aqs.NewWithOptions(reentrantPolicy{fair: fair}, opts),
		fair: fair,
	}
}

// Lock acquires the lock, blocking until it is available.
func (l *ReentrantLock) Lock() {
	if !l.fair && l.sync.CompareAndSetState(0, 1) {
		l.sync.SetExclusiveOwner(goid.Get())
		return
	}
	l.sync.Acquire(1)
}

// LockInterruptibly acquires the lock unless ctx ends first.
func (l *ReentrantLock) LockInterruptibly(ctx context.Context) error {
	return l.sync.AcquireInterruptibly(ctx, 1)
}

// TryLock acquires the lock only if it is free or already held by the
// caller. It barges even on a fair lock.
func (l *ReentrantLock) TryLock() bool {
	return reentrantPolicy{}.TryAcquire(l.sync, 1)
}

// TryLockTimeout acquires the lock if it becomes available within d and
// ctx does not end first. It honors the fairness setting.
func (l *ReentrantLock) TryLockTimeout(ctx context.Context, d time.Duration) (bool, error) {
	return l.sync.TryAcquireTimeout(ctx, 1, d)
}

// Unlock releases one hold. It panics with *aqs.MonitorStateError if the
// caller does not hold the lock.
func (l *ReentrantLock) Unlock() {
	l.sync.Release(1)
}

// NewCondition returns a condition variable bound to l.
func (l *ReentrantLock) NewCondition() *aqs.Condition {
	return l.sync.NewCondition()
}

// HoldCount returns the number of holds by the calling goroutine, or zero
// if it does not hold the lock.
func (l *ReentrantLock) HoldCount() int {
	if l.IsHeldByCurrentGoroutine() {
		return int(l.sync.State())
	}
	return 0
}

// IsHeldByCurrentGoroutine reports whether the caller holds the lock.
func (l *ReentrantLock) IsHeldByCurrentGoroutine() bool {
	return l.sync.ExclusiveOwner() == goid.Get()
}

// IsLocked reports whether any goroutine holds the lock.
func (l *ReentrantLock) IsLocked() bool {
	return l.sync.State() != 0
}

// IsFair reports whether the lock was created fair.
func (l *ReentrantLock) IsFair() bool {
	return l.fair
}

// Owner returns the id of the owning goroutine, and false if the lock is
// free.
func (l *ReentrantLock) Owner() (int64, bool) {
	if l.sync.State() == 0 {
		return 0, false
	}
	gid := l.sync.ExclusiveOwner()
	return gid, gid != 0
}

// HasQueuedThreads reports whether any goroutine may be waiting to
// acquire.
func (l *ReentrantLock) HasQueuedThreads() bool {
	return l.sync.HasQueuedThreads()
}

// HasQueuedThread reports whether the goroutine with id gid is waiting to
// acquire.
func (l *ReentrantLock) HasQueuedThread(gid int64) bool {
	return l.sync.IsQueued(gid)
}

// QueueLength estimates the number of goroutines waiting to acquire.
func (l *ReentrantLock) QueueLength() int {
	return l.sync.QueueLength()
}

// HasWaiters reports whether any goroutine waits on c. The caller must
// hold l, and c must come from l.NewCondition.
func (l *ReentrantLock) HasWaiters(c *aqs.Condition) bool {
	return l.sync.HasWaiters(c)
}

// WaitQueueLength estimates the number of goroutines waiting on c, with
// the same preconditions as HasWaiters.
func (l *ReentrantLock) WaitQueueLength(c *aqs.Condition) int {
	return l.sync.WaitQueueLength(c)
}

// String identifies the lock and its state.
//
// Format: "ReentrantLock[Unlocked]" or "ReentrantLock[Locked by goroutine 42]"
func (l *ReentrantLock) String() string {
	if gid, ok := l.Owner(); ok {
		return fmt.Sprintf("ReentrantLock[Locked by goroutine %d]", gid)
	}
	return "ReentrantLock[Unlocked]"
}
