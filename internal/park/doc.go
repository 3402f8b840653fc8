// Package park implements the blocking primitive used by every queued
// synchronizer in this module.
//
// A Parker holds at most one permit. Unpark makes the permit available and
// Park consumes it, blocking until it appears. The permit is latched, not
// counted: any number of Unpark calls before a Park yield a single return.
//
// Key properties:
//   - Unpark may precede Park (the signal is not lost)
//   - Unpark is safe from any goroutine, on any Parker, at any time
//   - Park may return spuriously; callers always re-check their predicate
//
// Two mechanisms exist:
//   - Channel (default): a one-slot channel. Park blocks the goroutine in
//     the Go scheduler and releases its OS thread, so any number of
//     goroutines may be parked at once.
//   - Futex (linux only, opt-in): the permit word is waited on with
//     futex(2). A parked goroutine keeps its OS thread inside the system
//     call for as long as it waits, so every waiter costs one thread and
//     the process dies once runtime/debug.SetMaxThreads is exceeded. It
//     trades that for lower wakeup latency with few waiters. On other
//     platforms Futex falls back to Channel.
//
// Example:
//
//	p := park.New()
//	go func() {
//	    ready.Store(true)
//	    p.Unpark()
//	}()
//	for !ready.Load() {
//	    p.Park()
//	}
package park
