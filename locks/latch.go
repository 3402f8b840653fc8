package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/kolkov/queuedsync/aqs"
)

// CountDownLatch lets goroutines wait until a count reaches zero. The count
// cannot be reset: once it is zero every Await returns immediately.
type CountDownLatch struct {
	sync *aqs.Synchronizer
}

type latchPolicy struct {
	aqs.Unsupported
}

func (latchPolicy) TryAcquireShared(s *aqs.Synchronizer, _ int32) int32 {
	if s.State() == 0 {
		return 1
	}
	return -1
}

func (latchPolicy) TryReleaseShared(s *aqs.Synchronizer, _ int32) bool {
	for {
		c := s.State()
		if c == 0 {
			return false
		}
		next := c - 1
		if s.CompareAndSetState(c, next) {
			return next == 0
		}
	}
}

// NewCountDownLatch creates a latch that opens after count calls to
// CountDown. It panics if count is negative.
func NewCountDownLatch(count int32) *CountDownLatch {
	checkNonNegative("NewCountDownLatch", count)
	s := aqs.New(latchPolicy{})
	s.SetState(count)
	return &CountDownLatch{sync: s}
}

// Await blocks until the count reaches zero.
func (l *CountDownLatch) Await() {
	l.sync.AcquireShared(1)
}

// AwaitContext blocks until the count reaches zero or ctx ends.
func (l *CountDownLatch) AwaitContext(ctx context.Context) error {
	return l.sync.AcquireSharedInterruptibly(ctx, 1)
}

// AwaitTimeout blocks until the count reaches zero, d elapses, or ctx ends.
// It reports whether the latch opened.
func (l *CountDownLatch) AwaitTimeout(ctx context.Context, d time.Duration) (bool, error) {
	return l.sync.TryAcquireSharedTimeout(ctx, 1, d)
}

// CountDown decrements the count, releasing every waiter when it reaches
// zero. Counting down an open latch has no effect.
func (l *CountDownLatch) CountDown() {
	l.sync.ReleaseShared(1)
}

// Count returns the current count.
func (l *CountDownLatch) Count() int32 {
	return l.sync.State()
}

// String identifies the latch and its count.
//
// Format: "CountDownLatch[Count = 2]"
func (l *CountDownLatch) String() string {
	return fmt.Sprintf("CountDownLatch[Count = %d]", l.sync.State())
}
