package aqs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/kolkov/queuedsync/internal/park"
	"github.com/kolkov/queuedsync/internal/spin"
)

// Tuning configures bounded spinning before a goroutine parks.
// The zero value selects defaults derived from the number of CPUs.
type Tuning = spin.Tuning

// DefaultTuning returns the tuning used by a zero Options.
func DefaultTuning() Tuning {
	return spin.DefaultTuning()
}

// Options configures a Synchronizer.
type Options struct {
	// Tuning controls spinning before parking. The zero value selects
	// DefaultTuning().
	Tuning Tuning

	// ThreadParking parks waiters with futex(2) on linux instead of through
	// the Go scheduler. Each blocked goroutine then holds one OS thread
	// until it wakes, so the number of simultaneous waiters is bounded by
	// runtime/debug.SetMaxThreads (10000 by default) and exceeding it
	// kills the process. Ignored on other platforms.
	ThreadParking bool
}

// parkKind maps the ThreadParking switch to a parker kind.
func parkKind(thread bool) park.Kind {
	if thread {
		return park.Futex
	}
	return park.Channel
}

// Synchronizer is the acquire/release engine shared by locks, semaphores
// and latches.
//
// It owns one 32-bit state word, whose meaning is defined entirely by the
// Policy, and a CLH-derived wait queue of blocked goroutines. Uncontended
// acquisitions touch only the state word; queue nodes are allocated only
// after a fast-path attempt failed.
//
// Layout:
//   - head: the node currently served (dummy until first contention)
//   - tail: the most recently enqueued node
//   - state: the policy-defined state word
//   - owner: goroutine id of the exclusive holder, 0 if none
//
// head and tail are nil until the first contention and never return to
// nil afterwards.
//
// Thread Safety: All methods are safe for concurrent calls.
type Synchronizer struct {
	head  atomic.Pointer[node]
	tail  atomic.Pointer[node]
	state atomic.Int32
	owner atomic.Int64

	policy  Policy
	tuning  spin.Tuning
	parking park.Kind
}

// New creates a Synchronizer driven by p with default options.
func New(p Policy) *Synchronizer {
	return NewWithOptions(p, Options{})
}

// NewWithOptions creates a Synchronizer driven by p.
func NewWithOptions(p Policy, opts Options) *Synchronizer {
	return &Synchronizer{
		policy:  p,
		tuning:  opts.Tuning.Normalize(),
		parking: parkKind(opts.ThreadParking).Effective(),
	}
}

// Parking names the mechanism waiters block with: "channel" or "futex".
func (s *Synchronizer) Parking() string {
	return s.parking.String()
}

// State returns the current state word.
func (s *Synchronizer) State() int32 {
	return s.state.Load()
}

// SetState stores a new state word. Use it only when the caller is the
// unique writer, e.g. an exclusive holder releasing.
func (s *Synchronizer) SetState(v int32) {
	s.state.Store(v)
}

// CompareAndSetState atomically sets the state to update if it currently
// equals expect.
func (s *Synchronizer) CompareAndSetState(expect, update int32) bool {
	return s.state.CompareAndSwap(expect, update)
}

// SetExclusiveOwner records the goroutine id of the exclusive holder.
// Pass 0 to clear it.
func (s *Synchronizer) SetExclusiveOwner(gid int64) {
	s.owner.Store(gid)
}

// ExclusiveOwner returns the goroutine id last recorded with
// SetExclusiveOwner, or 0.
func (s *Synchronizer) ExclusiveOwner() int64 {
	return s.owner.Load()
}

// Acquire acquires in exclusive mode, blocking until it succeeds.
//
// The uncontended path is a single TryAcquire call. Acquire is not
// cancellable; use AcquireInterruptibly to honor a context.
func (s *Synchronizer) Acquire(arg int32) {
	if !s.policy.TryAcquire(s, arg) {
		_, _ = s.acquireQueued(nil, s.addWaiter(Exclusive), arg, time.Time{})
	}
}

// AcquireInterruptibly is like Acquire but gives up when ctx is done. On
// cancellation the error wraps ErrInterrupted and context.Cause(ctx), and
// the caller's queue node has already been unlinked.
func (s *Synchronizer) AcquireInterruptibly(ctx context.Context, arg int32) error {
	if ctx.Err() != nil {
		return Interrupted(ctx)
	}
	if s.policy.TryAcquire(s, arg) {
		return nil
	}
	_, err := s.acquireQueued(ctx, s.addWaiter(Exclusive), arg, time.Time{})
	return err
}

// TryAcquireTimeout is like AcquireInterruptibly but also gives up after d.
// A timeout returns (false, nil).
func (s *Synchronizer) TryAcquireTimeout(ctx context.Context, arg int32, d time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, Interrupted(ctx)
	}
	if s.policy.TryAcquire(s, arg) {
		return true, nil
	}
	if d <= 0 {
		return false, nil
	}
	return s.acquireQueued(ctx, s.addWaiter(Exclusive), arg, time.Now().Add(d))
}

// Release releases in exclusive mode. It wakes one waiter when TryRelease
// reports the synchronizer fully free, and returns TryRelease's result.
func (s *Synchronizer) Release(arg int32) bool {
	if !s.policy.TryRelease(s, arg) {
		return false
	}
	if h := s.head.Load(); h != nil && h.status.Load() != 0 {
		s.unparkSuccessor(h)
	}
	return true
}

// acquireQueued runs the exclusive acquire loop for an already queued node.
//
// ctx == nil means uninterruptible; a zero deadline means untimed. Whatever
// the exit (success, timeout, cancellation, or a panicking hook), the node
// is either the new head or fully cancelled when this returns.
func (s *Synchronizer) acquireQueued(ctx context.Context, n *node, arg int32, deadline time.Time) (acquired bool, err error) {
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
		if p == s.head.Load() && s.policy.TryAcquire(s, arg) {
			s.setHead(n)
			p.next.Store(nil)
			failed = false
			return true, nil
		}
		if !s.parkAfterFailedAcquire(p, n, deadline) {
			return false, nil
		}
		if ctx != nil && ctx.Err() != nil {
			return false, Interrupted(ctx)
		}
	}
}

// parkAfterFailedAcquire is the shared tail of every acquire loop: it parks
// if the queue protocol allows it, and reports false once the deadline has
// passed.
func (s *Synchronizer) parkAfterFailedAcquire(p, n *node, deadline time.Time) bool {
	if deadline.IsZero() {
		if s.shouldParkAfterFailedAcquire(p, n) {
			n.parker.Park()
		}
		return true
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	if s.shouldParkAfterFailedAcquire(p, n) && remaining > s.tuning.SpinForTimeoutThreshold {
		n.parker.ParkTimeout(remaining)
	}
	return true
}

// watch arranges for p to be unparked when ctx is done, so a parked waiter
// reaches its post-park cancellation check. The returned func unregisters.
func watch(ctx context.Context, p *park.Parker) func() bool {
	if ctx == nil || ctx.Done() == nil {
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, p.Unpark)
}
