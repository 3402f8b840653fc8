// Package locks provides ready-made synchronizers built on package aqs:
// a reentrant mutual exclusion lock with conditions, a counting semaphore,
// and a one-shot countdown latch.
//
// Each type is a thin policy over an aqs.Synchronizer. The state word holds
// the hold count, the available permits, or the remaining count, and the
// synchronizer supplies queueing, parking, timeouts and cancellation.
//
// Blocking methods come in three flavors, following package aqs:
//
//	l.Lock()                           // blocks, not cancellable
//	err := l.LockInterruptibly(ctx)    // returns aqs.ErrInterrupted when ctx ends
//	ok, err := l.TryLockTimeout(ctx, d) // (false, nil) on timeout
//
// Contract violations, such as unlocking a lock held by another goroutine,
// panic with *aqs.MonitorStateError. Arithmetic overflow of a hold count or
// a permit count panics as well, since the synchronizer state is then
// unrecoverable.
package locks

import "errors"

var (
	// ErrHoldCountOverflow is the panic value when a ReentrantLock is
	// acquired more times than its state word can count.
	ErrHoldCountOverflow = errors.New("maximum lock count exceeded")

	// ErrPermitOverflow is the panic value when a release would push the
	// permits of a Semaphore past the largest int32.
	ErrPermitOverflow = errors.New("maximum permit count exceeded")

	// ErrPermitUnderflow is the panic value when ReducePermits would push
	// the permits of a Semaphore below the smallest int32.
	ErrPermitUnderflow = errors.New("permit count underflow")

	// ErrNegativeArgument is wrapped by the panic value of calls given a
	// negative permit or latch count.
	ErrNegativeArgument = errors.New("negative argument")
)
