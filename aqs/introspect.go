package aqs

import (
	"fmt"

	"github.com/petermattis/goid"
)

// The methods below are for monitoring and tests. Their answers can be stale
// by the time they return and must never drive synchronization decisions,
// with the exception of HasQueuedPredecessors, which fair policies use as
// documented.

// HasQueuedThreads reports whether any goroutine may be waiting to acquire.
func (s *Synchronizer) HasQueuedThreads() bool {
	return s.head.Load() != s.tail.Load()
}

// HasContended reports whether any goroutine ever had to queue.
func (s *Synchronizer) HasContended() bool {
	return s.head.Load() != nil
}

// FirstQueuedThread returns the goroutine id of the longest-waiting
// goroutine, and false if the queue is empty.
func (s *Synchronizer) FirstQueuedThread() (int64, bool) {
	if s.head.Load() == s.tail.Load() {
		return 0, false
	}
	return s.fullFirstQueuedThread()
}

func (s *Synchronizer) fullFirstQueuedThread() (int64, bool) {
	// The first node is normally head.next. Try that twice, since a
	// concurrent setHead can make one read inconsistent.
	for i := 0; i < 2; i++ {
		h := s.head.Load()
		if h == nil {
			break
		}
		if n := h.next.Load(); n != nil && n.prev.Load() == s.head.Load() && n.thread.Load() != nil {
			return n.gid, true
		}
	}
	// head.next lags or is being cancelled: walk back from tail.
	var gid int64
	found := false
	for t := s.tail.Load(); t != nil && t != s.head.Load(); t = t.prev.Load() {
		if t.thread.Load() != nil {
			gid, found = t.gid, true
		}
	}
	return gid, found
}

// IsQueued reports whether the goroutine with id gid is currently queued.
func (s *Synchronizer) IsQueued(gid int64) bool {
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t.gid == gid && t.thread.Load() != nil {
			return true
		}
	}
	return false
}

// ApparentlyFirstQueuedIsExclusive reports whether the apparent first waiter
// wants exclusive mode. Reader/writer policies use it to stop readers from
// starving a queued writer.
func (s *Synchronizer) ApparentlyFirstQueuedIsExclusive() bool {
	h := s.head.Load()
	if h == nil {
		return false
	}
	n := h.next.Load()
	return n != nil && !n.isShared() && n.thread.Load() != nil
}

// HasQueuedPredecessors reports whether some other goroutine has waited
// longer than the caller. Fair policies call it from TryAcquire and fail
// when it returns true.
func (s *Synchronizer) HasQueuedPredecessors() bool {
	// Read tail before head: if head is read first, a concurrent enqueue
	// could make a non-empty queue look empty.
	t := s.tail.Load()
	h := s.head.Load()
	if h == t {
		return false
	}
	n := h.next.Load()
	return n == nil || n.thread.Load() == nil || n.gid != goid.Get()
}

// QueueLength estimates the number of goroutines waiting to acquire.
func (s *Synchronizer) QueueLength() int {
	count := 0
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t.thread.Load() != nil {
			count++
		}
	}
	return count
}

// QueuedThreads returns the ids of goroutines that may be waiting, most
// recently queued first.
func (s *Synchronizer) QueuedThreads() []int64 {
	return s.queuedThreads(func(*node) bool { return true })
}

// ExclusiveQueuedThreads is like QueuedThreads restricted to exclusive waiters.
func (s *Synchronizer) ExclusiveQueuedThreads() []int64 {
	return s.queuedThreads(func(n *node) bool { return !n.isShared() })
}

// SharedQueuedThreads is like QueuedThreads restricted to shared waiters.
func (s *Synchronizer) SharedQueuedThreads() []int64 {
	return s.queuedThreads((*node).isShared)
}

func (s *Synchronizer) queuedThreads(keep func(*node) bool) []int64 {
	var ids []int64
	for t := s.tail.Load(); t != nil; t = t.prev.Load() {
		if t.thread.Load() != nil && keep(t) {
			ids = append(ids, t.gid)
		}
	}
	return ids
}

// Owns reports whether c was created by s.
func (s *Synchronizer) Owns(c *Condition) bool {
	return c.sync == s
}

// HasWaiters reports whether any goroutine is waiting on c. The caller must
// hold s exclusively, and c must belong to s.
func (s *Synchronizer) HasWaiters(c *Condition) bool {
	s.checkOwns(c, "HasWaiters")
	for w := c.firstWaiter; w != nil; w = w.nextWaiter {
		if w.status.Load() == statusCondition {
			return true
		}
	}
	return false
}

// WaitQueueLength estimates the number of goroutines waiting on c. Same
// preconditions as HasWaiters.
func (s *Synchronizer) WaitQueueLength(c *Condition) int {
	s.checkOwns(c, "WaitQueueLength")
	count := 0
	for w := c.firstWaiter; w != nil; w = w.nextWaiter {
		if w.status.Load() == statusCondition {
			count++
		}
	}
	return count
}

// WaitingThreads returns the ids of goroutines waiting on c. Same
// preconditions as HasWaiters.
func (s *Synchronizer) WaitingThreads(c *Condition) []int64 {
	s.checkOwns(c, "WaitingThreads")
	var ids []int64
	for w := c.firstWaiter; w != nil; w = w.nextWaiter {
		if w.status.Load() == statusCondition {
			ids = append(ids, w.gid)
		}
	}
	return ids
}

func (s *Synchronizer) checkOwns(c *Condition, op string) {
	if !s.Owns(c) {
		IllegalState(op, "condition not owned by this synchronizer")
	}
	c.checkHeld(op)
}

// String returns the state word and whether the queue is empty.
//
// Format: "[State = 3, nonempty queue]"
func (s *Synchronizer) String() string {
	q := "non"
	if !s.HasQueuedThreads() {
		q = ""
	}
	return fmt.Sprintf("[State = %d, %sempty queue]", s.State(), q)
}
