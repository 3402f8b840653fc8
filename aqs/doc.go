// Package aqs implements a queued synchronizer framework: a blocking
// acquire/release engine built from one atomic state word and a CLH-derived
// wait queue, plus condition variables layered on it.
//
// Concrete synchronizers (locks, semaphores, latches) supply a Policy that
// says what the state word means; the Synchronizer turns those non-blocking
// hooks into blocking, cancellable and timed acquire and release operations.
//
// # Wait queue
//
// Goroutines that fail their fast-path attempt are appended to a doubly
// linked queue with a single CAS on tail. Each node's prev link is written
// before that CAS and is therefore authoritative; next links are a lagging
// optimization, and every walker that finds one missing or pointing at a
// cancelled node falls back to a backward scan from tail.
//
// A node parks only after its predecessor's status was set to SIGNAL, which
// obliges the predecessor to wake it on release. Cancelled nodes are skipped
// and spliced out by whoever meets them.
//
// # Shared mode and PROPAGATE
//
// Shared releases must reach every shared acquirer that can proceed, even
// when releases race with a shared acquirer becoming head. The PROPAGATE
// status records a release that found nobody to signal, and the new head
// propagates whenever the old or new head carries any negative status.
// This over-signals in rare interleavings instead of ever losing a wakeup.
//
// # Cancellation
//
// The blocking primitive knows nothing about cancellation. Interruptible
// operations take a context.Context, register context.AfterFunc to unpark
// the waiter, and poll ctx.Err() on entry and after every park. Every exit
// path (success, timeout, cancellation, panicking hook) leaves the caller's
// node either as the new head or fully cancelled.
//
// # Errors
//
// Contract violations panic with *MonitorStateError (wrapping
// ErrIllegalMonitorState). Cancellation returns an error wrapping
// ErrInterrupted and the context cause. Timeouts return false. CAS failures
// are retried internally and never surface.
//
// Example:
//
//	type mutexPolicy struct{ aqs.Unsupported }
//
//	func (mutexPolicy) TryAcquire(s *aqs.Synchronizer, _ int32) bool {
//	    return s.CompareAndSetState(0, 1)
//	}
//
//	func (mutexPolicy) TryRelease(s *aqs.Synchronizer, _ int32) bool {
//	    s.SetState(0)
//	    return true
//	}
//
//	s := aqs.New(mutexPolicy{})
//	s.Acquire(1)
//	defer s.Release(1)
package aqs
