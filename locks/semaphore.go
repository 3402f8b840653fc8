package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/kolkov/queuedsync/aqs"
)

// Semaphore is a counting semaphore. The state word is the number of
// available permits; it may be negative after ReducePermits or when created
// with negative permits, in which case releases must bring it back up
// before any acquire succeeds.
//
// Permits are not owned: any goroutine may release permits it never
// acquired.
//
// A nonfair semaphore lets arriving goroutines take permits ahead of queued
// ones. A fair one serves the queue in FIFO order. TryAcquire and
// TryAcquireN barge in both modes.
//
// Thread Safety: All methods are safe for concurrent calls.
type Semaphore struct {
	sync *aqs.Synchronizer
	fair bool
}

type semaphorePolicy struct {
	aqs.Unsupported
	fair bool
}

func (p semaphorePolicy) TryAcquireShared(s *aqs.Synchronizer, acquires int32) int32 {
	for {
		if p.fair && s.HasQueuedPredecessors() {
			return -1
		}
		available := s.State()
		remaining := available - acquires
		if remaining < 0 || s.CompareAndSetState(available, remaining) {
			return remaining
		}
	}
}

func (semaphorePolicy) TryReleaseShared(s *aqs.Synchronizer, releases int32) bool {
	for {
		current := s.State()
		next := current + releases
		if next < current {
			panic(ErrPermitOverflow)
		}
		if s.CompareAndSetState(current, next) {
			return true
		}
	}
}

// NewSemaphore creates a semaphore with the given number of permits and
// fairness setting.
func NewSemaphore(permits int32, fair bool) *Semaphore {
	return NewSemaphoreWithOptions(permits, fair, aqs.Options{})
}

// NewSemaphoreWithOptions is NewSemaphore with synchronizer options.
func NewSemaphoreWithOptions(permits int32, fair bool, opts aqs.Options) *Semaphore {
	s := aqs.NewWithOptions(semaphorePolicy{fair: fair}, opts)
	s.SetState(permits)
	return &Semaphore{sync: s, fair: fair}
}

func checkNonNegative(op string, n int32) {
	if n < 0 {
		panic(fmt.Errorf("%s(%d): %w", op, n, ErrNegativeArgument))
	}
}

// Acquire takes one permit, blocking until one is available.
func (sem *Semaphore) Acquire() {
	sem.sync.AcquireShared(1)
}

// AcquireN takes n permits at once, blocking until all are available.
func (sem *Semaphore) AcquireN(n int32) {
	checkNonNegative("AcquireN", n)
	sem.sync.AcquireShared(n)
}

// AcquireContext takes one permit unless ctx ends first.
func (sem *Semaphore) AcquireContext(ctx context.Context) error {
	return sem.sync.AcquireSharedInterruptibly(ctx, 1)
}

// AcquireNContext takes n permits unless ctx ends first. On error no
// permits are held.
func (sem *Semaphore) AcquireNContext(ctx context.Context, n int32) error {
	checkNonNegative("AcquireNContext", n)
	return sem.sync.AcquireSharedInterruptibly(ctx, n)
}

// TryAcquire takes one permit if one is available right now.
func (sem *Semaphore) TryAcquire() bool {
	return sem.TryAcquireN(1)
}

// TryAcquireN takes n permits if all are available right now.
func (sem *Semaphore) TryAcquireN(n int32) bool {
	checkNonNegative("TryAcquireN", n)
	return semaphorePolicy{}.TryAcquireShared(sem.sync, n) >= 0
}

// TryAcquireTimeout takes n permits if they become available within d and
// ctx does not end first. It honors the fairness setting. A timeout
// returns (false, nil).
func (sem *Semaphore) TryAcquireTimeout(ctx context.Context, n int32, d time.Duration) (bool, error) {
	checkNonNegative("TryAcquireTimeout", n)
	return sem.sync.TryAcquireSharedTimeout(ctx, n, d)
}

// Release returns one permit.
func (sem *Semaphore) Release() {
	sem.sync.ReleaseShared(1)
}

// ReleaseN returns n permits.
func (sem *Semaphore) ReleaseN(n int32) {
	checkNonNegative("ReleaseN", n)
	sem.sync.ReleaseShared(n)
}

// AvailablePermits returns the current number of permits.
func (sem *Semaphore) AvailablePermits() int32 {
	return sem.sync.State()
}

// DrainPermits takes every immediately available permit and returns how
// many were taken. A negative count is left unchanged and 0 is returned.
func (sem *Semaphore) DrainPermits() int32 {
	for {
		current := sem.sync.State()
		if current == 0 || sem.sync.CompareAndSetState(current, 0) {
			return current
		}
	}
}

// ReducePermits shrinks the number of available permits by reduction
// without blocking. Unlike AcquireN it may drive the count negative.
func (sem *Semaphore) ReducePermits(reduction int32) {
	checkNonNegative("ReducePermits", reduction)
	for {
		current := sem.sync.State()
		next := current - reduction
		if next > current {
			panic(ErrPermitUnderflow)
		}
		if sem.sync.CompareAndSetState(current, next) {
			return
		}
	}
}

// IsFair reports whether the semaphore was created fair.
func (sem *Semaphore) IsFair() bool {
	return sem.fair
}

// HasQueuedThreads reports whether any goroutine may be waiting.
func (sem *Semaphore) HasQueuedThreads() bool {
	return sem.sync.HasQueuedThreads()
}

// QueueLength estimates the number of waiting goroutines.
func (sem *Semaphore) QueueLength() int {
	return sem.sync.QueueLength()
}

// QueuedThreads returns the ids of goroutines that may be waiting.
func (sem *Semaphore) QueuedThreads() []int64 {
	return sem.sync.QueuedThreads()
}

// String identifies the semaphore and its permits.
//
// Format: "Semaphore[Permits = 3]"
func (sem *Semaphore) String() string {
	return fmt.Sprintf("Semaphore[Permits = %d]", sem.sync.State())
}
