package aqs

import (
	"context"
	"time"

	"github.com/petermattis/goid"

	"github.com/kolkov/queuedsync/internal/spin"
)

// Condition is a condition variable bound to a Synchronizer used in
// exclusive mode.
//
// Waiters sit on a singly linked condition queue until signalled, at which
// point their node is moved onto the synchronizer's wait queue and they
// reacquire like any other blocked acquirer. The condition queue is only
// touched by the exclusive holder, so it needs no atomics of its own.
//
// All methods except the introspection helpers on Synchronizer require the
// caller to hold the synchronizer exclusively.
//
// Example:
//
//	lock.Lock()
//	for !ready {
//	    if err := cond.Await(ctx); err != nil {
//	        lock.Unlock()
//	        return err
//	    }
//	}
//	lock.Unlock()
type Condition struct {
	sync        *Synchronizer
	firstWaiter *node
	lastWaiter  *node
}

// NewCondition returns a condition variable bound to s. s's policy must
// implement IsHeldExclusively.
func (s *Synchronizer) NewCondition() *Condition {
	return &Condition{sync: s}
}

// Outcome of cancellation during a condition wait.
const (
	noInterrupt = iota
	// reinterrupt: a signal won the race, the wait completes normally.
	reinterrupt
	// throwInterrupt: cancelled before any signal, report the error.
	throwInterrupt
)

// Signal moves the longest-waiting goroutine, if any, to the wait queue of
// the owning synchronizer. With no waiters it is a no-op.
//
// Panics with *MonitorStateError if the caller does not hold the
// synchronizer exclusively.
func (c *Condition) Signal() {
	c.checkHeld("Signal")
	if first := c.firstWaiter; first != nil {
		c.doSignal(first)
	}
}

// SignalAll moves every waiting goroutine to the wait queue of the owning
// synchronizer.
//
// Panics with *MonitorStateError if the caller does not hold the
// synchronizer exclusively.
func (c *Condition) SignalAll() {
	c.checkHeld("SignalAll")
	if first := c.firstWaiter; first != nil {
		c.doSignalAll(first)
	}
}

// AwaitUninterruptibly waits until signalled. The lock is released while
// waiting and reacquired, with the same hold count, before returning.
func (c *Condition) AwaitUninterruptibly() {
	c.checkHeld("AwaitUninterruptibly")
	n := c.addConditionWaiter()
	saved := c.sync.fullyRelease(n)
	for !c.sync.isOnSyncQueue(n) {
		n.parker.Park()
	}
	_, _ = c.sync.acquireQueued(nil, n, saved, time.Time{})
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
}

// Await waits until signalled or ctx is done. The lock is always held again
// when Await returns, whatever the outcome.
//
// If ctx ends the wait before a signal arrived, the returned error wraps
// ErrInterrupted. If a signal claimed the waiter first, Await returns nil
// even though ctx may be done; the caller can still observe ctx.Err().
func (c *Condition) Await(ctx context.Context) error {
	c.checkHeld("Await")
	if ctx.Err() != nil {
		return Interrupted(ctx)
	}
	n := c.addConditionWaiter()
	saved := c.sync.fullyRelease(n)

	stop := watch(ctx, n.parker)
	mode := noInterrupt
	for !c.sync.isOnSyncQueue(n) {
		n.parker.Park()
		if mode = c.checkInterruptWhileWaiting(ctx, n); mode != noInterrupt {
			break
		}
	}
	stop()

	return c.finishWait(ctx, n, saved, mode)
}

// AwaitTimeout waits until signalled, ctx is done, or d elapses. It returns
// an estimate of the time left; a value <= 0 means the wait timed out.
func (c *Condition) AwaitTimeout(ctx context.Context, d time.Duration) (time.Duration, error) {
	c.checkHeld("AwaitTimeout")
	if ctx.Err() != nil {
		return d, Interrupted(ctx)
	}
	n := c.addConditionWaiter()
	saved := c.sync.fullyRelease(n)
	deadline := time.Now().Add(d)

	stop := watch(ctx, n.parker)
	mode := noInterrupt
	for remaining := d; !c.sync.isOnSyncQueue(n); remaining = time.Until(deadline) {
		if remaining <= 0 {
			c.sync.transferAfterCancelledWait(n)
			break
		}
		if remaining >= c.sync.tuning.SpinForTimeoutThreshold {
			n.parker.ParkTimeout(remaining)
		}
		if mode = c.checkInterruptWhileWaiting(ctx, n); mode != noInterrupt {
			break
		}
	}
	stop()

	err := c.finishWait(ctx, n, saved, mode)
	return time.Until(deadline), err
}

// AwaitUntil waits until signalled, ctx is done, or deadline passes. It
// returns false if the deadline passed before a signal arrived.
func (c *Condition) AwaitUntil(ctx context.Context, deadline time.Time) (bool, error) {
	c.checkHeld("AwaitUntil")
	if ctx.Err() != nil {
		return false, Interrupted(ctx)
	}
	n := c.addConditionWaiter()
	saved := c.sync.fullyRelease(n)

	stop := watch(ctx, n.parker)
	mode := noInterrupt
	timedOut := false
	for !c.sync.isOnSyncQueue(n) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			timedOut = c.sync.transferAfterCancelledWait(n)
			break
		}
		if remaining >= c.sync.tuning.SpinForTimeoutThreshold {
			n.parker.ParkTimeout(remaining)
		}
		if mode = c.checkInterruptWhileWaiting(ctx, n); mode != noInterrupt {
			break
		}
	}
	stop()

	err := c.finishWait(ctx, n, saved, mode)
	return !timedOut, err
}

// finishWait reacquires with the saved state, cleans up the condition queue
// and reports the cancellation outcome.
func (c *Condition) finishWait(ctx context.Context, n *node, saved int32, mode int) error {
	_, _ = c.sync.acquireQueued(nil, n, saved, time.Time{})
	if n.nextWaiter != nil {
		c.unlinkCancelledWaiters()
	}
	if mode == throwInterrupt {
		return Interrupted(ctx)
	}
	return nil
}

// checkInterruptWhileWaiting classifies a wakeup: throwInterrupt if ctx was
// done before a signal, reinterrupt if a signal won, noInterrupt otherwise.
func (c *Condition) checkInterruptWhileWaiting(ctx context.Context, n *node) int {
	if ctx.Err() == nil {
		return noInterrupt
	}
	if c.sync.transferAfterCancelledWait(n) {
		return throwInterrupt
	}
	return reinterrupt
}

// addConditionWaiter appends a CONDITION node for the caller.
func (c *Condition) addConditionWaiter() *node {
	t := c.lastWaiter
	if t != nil && t.status.Load() != statusCondition {
		c.unlinkCancelledWaiters()
		t = c.lastWaiter
	}
	n := newNode(Exclusive, goid.Get(), c.sync.parking)
	n.status.Store(statusCondition)
	if t == nil {
		c.firstWaiter = n
	} else {
		t.nextWaiter = n
	}
	c.lastWaiter = n
	return n
}

// doSignal transfers the first waiter that has not been cancelled.
func (c *Condition) doSignal(first *node) {
	for {
		c.firstWaiter = first.nextWaiter
		if c.firstWaiter == nil {
			c.lastWaiter = nil
		}
		first.nextWaiter = nil
		if c.sync.transferForSignal(first) {
			return
		}
		if first = c.firstWaiter; first == nil {
			return
		}
	}
}

// doSignalAll transfers every waiter.
func (c *Condition) doSignalAll(first *node) {
	c.firstWaiter, c.lastWaiter = nil, nil
	for first != nil {
		next := first.nextWaiter
		first.nextWaiter = nil
		c.sync.transferForSignal(first)
		first = next
	}
}

// unlinkCancelledWaiters drops nodes that left CONDITION status from the
// condition queue. Called with the lock held, whenever a cancellation may
// have left garbage behind.
func (c *Condition) unlinkCancelledWaiters() {
	var trail *node
	for t := c.firstWaiter; t != nil; {
		next := t.nextWaiter
		if t.status.Load() != statusCondition {
			t.nextWaiter = nil
			if trail == nil {
				c.firstWaiter = next
			} else {
				trail.nextWaiter = next
			}
			if next == nil {
				c.lastWaiter = trail
			}
		} else {
			trail = t
		}
		t = next
	}
}

func (c *Condition) checkHeld(op string) {
	if !c.sync.policy.IsHeldExclusively(c.sync) {
		IllegalState(op, "synchronizer not held exclusively by caller")
	}
}

// fullyRelease releases every hold of the caller and returns the state to
// restore on reacquire. A failed release marks n cancelled and panics.
func (s *Synchronizer) fullyRelease(n *node) int32 {
	saved := s.State()
	if !s.Release(saved) {
		n.status.Store(statusCancelled)
		IllegalState("fullyRelease", "release did not free the synchronizer")
	}
	return saved
}

// isOnSyncQueue reports whether a node that started on a condition queue
// has been transferred to the wait queue.
func (s *Synchronizer) isOnSyncQueue(n *node) bool {
	if n.status.Load() == statusCondition || n.prev.Load() == nil {
		return false
	}
	// A successor implies the node itself is queued.
	if n.next.Load() != nil {
		return true
	}
	// prev is set before the tail CAS, so it can be non-nil while the CAS
	// has not succeeded yet. Confirm from tail.
	return s.findNodeFromTail(n)
}

func (s *Synchronizer) findNodeFromTail(n *node) bool {
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t == n {
			return true
		}
	}
	return false
}

// transferForSignal moves n from a condition queue to the wait queue.
// Returns false if n was cancelled before the signal claimed it.
func (s *Synchronizer) transferForSignal(n *node) bool {
	if !n.status.CompareAndSwap(statusCondition, 0) {
		return false
	}
	// Ask the predecessor to signal n. If it is cancelled or its status
	// moved, wake n now; its acquire loop repairs the queue.
	p := s.enq(n)
	ws := p.status.Load()
	if ws > 0 || !p.status.CompareAndSwap(ws, statusSignal) {
		if t := n.thread.Load(); t != nil {
			t.Unpark()
		}
	}
	return true
}

// transferAfterCancelledWait moves a cancelled or timed-out condition
// waiter to the wait queue. It returns true if the cancellation happened
// before any signal. Otherwise a signal claimed the node and this waits
// until the signaller has finished enqueueing it.
func (s *Synchronizer) transferAfterCancelledWait(n *node) bool {
	if n.status.CompareAndSwap(statusCondition, 0) {
		s.enq(n)
		return true
	}
	for !s.isOnSyncQueue(n) {
		spin.Yield()
	}
	return false
}
