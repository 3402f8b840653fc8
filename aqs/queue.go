package aqs

import (
	"github.com/petermattis/goid"
)

// enq inserts n at the tail, installing a dummy head first if the queue was
// never used. The tail CAS is the single point where n becomes queued.
// Returns n's predecessor.
func (s *Synchronizer) enq(n *node) *node {
	for {
		t := s.tail.Load()
		if t == nil {
			h := &node{}
			if s.head.CompareAndSwap(nil, h) {
				s.tail.Store(h)
			}
			continue
		}
		// prev is written before the CAS that publishes n, so a backward
		// walk from tail always sees a complete chain.
		n.prev.Store(t)
		if s.tail.CompareAndSwap(t, n) {
			t.next.Store(n)
			return t
		}
	}
}

// addWaiter creates and enqueues a node for the calling goroutine.
func (s *Synchronizer) addWaiter(mode Mode) *node {
	n := newNode(mode, goid.Get(), s.parking)
	// Fast path; enq handles initialization and contention.
	if pred := s.tail.Load(); pred != nil {
		n.prev.Store(pred)
		if s.tail.CompareAndSwap(pred, n) {
			pred.next.Store(n)
			return n
		}
	}
	s.enq(n)
	return n
}

// setHead makes n the head after it acquired. Only the acquiring goroutine
// calls it, so plain stores suffice.
func (s *Synchronizer) setHead(n *node) {
	s.head.Store(n)
	n.thread.Store(nil)
	n.prev.Store(nil)
}

// unparkSuccessor wakes the first live waiter after n.
func (s *Synchronizer) unparkSuccessor(n *node) {
	// Clearing the status is best effort: it fails harmlessly when the
	// successor set it again or a shared release already did.
	if ws := n.status.Load(); ws < 0 {
		n.status.CompareAndSwap(ws, 0)
	}

	// next may not be installed yet, or may point at a cancelled node.
	// The prev chain from tail is authoritative, so scan backward.
	succ := n.next.Load()
	if succ == nil || succ.status.Load() > 0 {
		succ = nil
		for t := s.tail.Load(); t != nil && t != n; t = t.prev.Load() {
			if t.status.Load() <= 0 {
				succ = t
			}
		}
	}
	if succ != nil {
		if p := succ.thread.Load(); p != nil {
			p.Unpark()
		}
	}
}

// shouldParkAfterFailedAcquire decides whether n may park after a failed
// acquire. It returns true only once pred is marked SIGNAL; otherwise it fixes
// up the queue and asks the caller for one more try first.
func (s *Synchronizer) shouldParkAfterFailedAcquire(pred, n *node) bool {
	ws := pred.status.Load()
	if ws == statusSignal {
		return true
	}
	if ws > 0 {
		// Skip cancelled predecessors. Head is never cancelled, so the
		// walk terminates.
		for {
			pred = pred.prev.Load()
			n.prev.Store(pred)
			if pred.status.Load() <= 0 {
				break
			}
		}
		pred.next.Store(n)
	} else {
		// 0 or PROPAGATE: ask for a signal but do not park yet, the caller
		// may already be at the front.
		pred.status.CompareAndSwap(ws, statusSignal)
	}
	return false
}

// cancelAcquire removes n from the queue after its waiter gave up. It never
// blocks. If n's removal could strand its successor, the successor is woken
// so its own loop re-links past n.
func (s *Synchronizer) cancelAcquire(n *node) {
	if n == nil {
		return
	}
	n.thread.Store(nil)

	pred := n.prev.Load()
	for pred.status.Load() > 0 {
		pred = pred.prev.Load()
		n.prev.Store(pred)
	}
	predNext := pred.next.Load()

	// After this store other nodes skip past n; before it, n is still live
	// from their point of view.
	n.status.Store(statusCancelled)

	if n == s.tail.Load() && s.tail.CompareAndSwap(n, pred) {
		pred.next.CompareAndSwap(predNext, nil)
		return
	}

	// If pred can signal, link it to n's successor. Otherwise wake the
	// successor directly so it can fix its own predecessor.
	ws := pred.status.Load()
	if pred != s.head.Load() &&
		(ws == statusSignal || (ws <= 0 && pred.status.CompareAndSwap(ws, statusSignal))) &&
		pred.thread.Load() != nil {
		if next := n.next.Load(); next != nil && next.status.Load() <= 0 {
			pred.next.CompareAndSwap(predNext, next)
		}
	} else {
		s.unparkSuccessor(n)
	}
	n.next.Store(redirect)
}
