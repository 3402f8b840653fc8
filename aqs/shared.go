package aqs

import (
	"context"
	"time"
)

// AcquireShared acquires in shared mode, blocking until TryAcquireShared
// returns a non-negative value. It is not cancellable.
func (s *Synchronizer) AcquireShared(arg int32) {
	if s.policy.TryAcquireShared(s, arg) < 0 {
		_, _ = s.acquireSharedQueued(nil, arg, time.Time{})
	}
}

// AcquireSharedInterruptibly is like AcquireShared but gives up when ctx is
// done, returning an error that wraps ErrInterrupted.
func (s *Synchronizer) AcquireSharedInterruptibly(ctx context.Context, arg int32) error {
	if ctx.Err() != nil {
		return Interrupted(ctx)
	}
	if s.policy.TryAcquireShared(s, arg) >= 0 {
		return nil
	}
	_, err := s.acquireSharedQueued(ctx, arg, time.Time{})
	return err
}

// TryAcquireSharedTimeout is like AcquireSharedInterruptibly but also gives
// up after d. A timeout returns (false, nil).
func (s *Synchronizer) TryAcquireSharedTimeout(ctx context.Context, arg int32, d time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, Interrupted(ctx)
	}
	if s.policy.TryAcquireShared(s, arg) >= 0 {
		return true, nil
	}
	if d <= 0 {
		return false, nil
	}
	return s.acquireSharedQueued(ctx, arg, time.Now().Add(d))
}

// ReleaseShared releases in shared mode. When TryReleaseShared reports that
// waiters may proceed, the release is propagated through the queue.
func (s *Synchronizer) ReleaseShared(arg int32) bool {
	if s.policy.TryReleaseShared(s, arg) {
		s.doReleaseShared()
		return true
	}
	return false
}

// acquireSharedQueued enqueues a shared node and runs the acquire loop.
// Same exit guarantees as acquireQueued.
func (s *Synchronizer) acquireSharedQueued(ctx context.Context, arg int32, deadline time.Time) (acquired bool, err error) {
	n := s.addWaiter(Shared)
	stop := watch(ctx, n.parker)
	defer stop()

	failed := true
	defer func() {
		if failed {
			s.cancelAcquire(n)
		}
	}()

	for {
		p := n.prev.Load()
		if p == s.head.Load() {
			if r := s.policy.TryAcquireShared(s, arg); r >= 0 {
				s.setHeadAndPropagate(n, r)
				p.next.Store(nil)
				failed = false
				return true, nil
			}
		}
		if !s.parkAfterFailedAcquire(p, n, deadline) {
			return false, nil
		}
		if ctx != nil && ctx.Err() != nil {
			return false, Interrupted(ctx)
		}
	}
}

// setHeadAndPropagate makes n the head and, if more shared acquirers may
// succeed, passes the release along.
//
// The test is deliberately loose. A propagate value of 0 read before a
// concurrent release would otherwise lose that release's wakeup, so any
// negative status on the old or the new head (PROPAGATE included) also
// triggers propagation. Extra wakeups are harmless; a missing one is a
// liveness bug.
func (s *Synchronizer) setHeadAndPropagate(n *node, propagate int32) {
	old := s.head.Load()
	s.setHead(n)

	if propagate > 0 || old == nil || old.status.Load() < 0 || headWantsSignal(s.head.Load()) {
		if next := n.next.Load(); next == nil || next.isShared() {
			s.doReleaseShared()
		}
	}
}

func headWantsSignal(h *node) bool {
	return h == nil || h.status.Load() < 0
}

// doReleaseShared signals the successor of head and makes sure the release
// propagates. If head needs no signal yet, it is marked PROPAGATE so a
// shared acquirer that is about to become head will continue the release.
// The loop repeats whenever head changes underneath it.
func (s *Synchronizer) doReleaseShared() {
	for {
		h := s.head.Load()
		if h != nil && h != s.tail.Load() {
			ws := h.status.Load()
			if ws == statusSignal {
				if !h.status.CompareAndSwap(statusSignal, 0) {
					continue
				}
				s.unparkSuccessor(h)
			} else if ws == 0 && !h.status.CompareAndSwap(0, statusPropagate) {
				continue
			}
		}
		if h == s.head.Load() {
			return
		}
	}
}
