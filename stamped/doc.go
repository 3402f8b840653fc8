// Package stamped implements a capability-based lock with three modes:
// exclusive write, shared read, and optimistic read.
//
// Every acquisition returns a Stamp, an opaque token that must be presented
// back to release or convert the hold. Optimistic reads take no lock at all:
// a reader obtains a stamp, reads, and then calls Validate to learn whether
// a writer intervened.
//
// # State word
//
// One 64-bit word holds everything:
//
//	bits 0-6   reader count (126 inline, 127 marks the overflow spinlock)
//	bit  7     write bit
//	bits 8-63  write sequence, advanced by every write release
//
// Readers beyond the inline width are counted in a side counter guarded by
// briefly setting the reader bits to their all-ones sentinel.
//
// # Queueing
//
// Blocked goroutines wait in a CLH-style queue. Writers each take a queue
// slot. A reader that arrives behind a queued reader does not take a slot of
// its own; it pushes itself onto that node's cowait stack, so a whole group
// of readers is released together when the node reaches the head. A reader
// arriving while a writer is queued always queues behind it, even if the
// lock is momentarily read-held, so streams of readers cannot starve writers.
//
// # Reading optimistically
//
// Data read between TryOptimisticRead and Validate may be inconsistent and
// must be treated as a tentative snapshot. To stay free of data races in the
// Go memory model, fields read optimistically must be accessed with
// sync/atomic. Go atomics are sequentially consistent, so those loads cannot
// be reordered after the load of the state word in Validate.
//
// Example:
//
//	var sl stamped.StampedLock
//	stamp := sl.TryOptimisticRead()
//	x, y := p.x.Load(), p.y.Load()
//	if !sl.Validate(stamp) {
//	    stamp = sl.ReadLock()
//	    x, y = p.x.Load(), p.y.Load()
//	    sl.UnlockRead(stamp)
//	}
//
// # Caller contract
//
// The lock is not reentrant. A goroutine that already holds a write or read
// stamp and asks for another one may deadlock. Presenting a stamp that does
// not match the lock state is a programming error and panics with
// *aqs.MonitorStateError.
package stamped
