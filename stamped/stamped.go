package stamped

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolkov/queuedsync/aqs"
	"github.com/kolkov/queuedsync/internal/park"
	"github.com/kolkov/queuedsync/internal/spin"
)

// Stamp is the token returned by every acquisition. Zero means the
// acquisition failed.
type Stamp uint64

// State word layout. See the package documentation.
const (
	lgReaders = 7

	rUnit  uint64 = 1
	wBit   uint64 = 1 << lgReaders
	rBits         = wBit - 1
	rFull         = rBits - 1
	aBits         = rBits | wBit
	sBits         = ^rBits
	origin        = wBit << 1
)

// Node statuses.
const (
	waiting   int32 = -1
	cancelled int32 = 1
)

type mode uint8

const (
	rMode mode = iota
	wMode
)

// wnode is a wait queue node. A reader node may additionally carry a
// stack of co-waiting readers linked through cowait.
type wnode struct {
	prev   atomic.Pointer[wnode]
	next   atomic.Pointer[wnode]
	cowait atomic.Pointer[wnode]
	thread atomic.Pointer[park.Parker] // non-nil while possibly parked
	status atomic.Int32                // 0, waiting or cancelled
	mode   mode
}

func newWNode(m mode, p *wnode) *wnode {
	n := &wnode{mode: m}
	n.prev.Store(p)
	return n
}

// Tuning configures bounded spinning before a goroutine parks.
type Tuning = spin.Tuning

// Options configures a StampedLock.
type Options struct {
	// Tuning controls spinning while enqueueing and at the queue head.
	// The zero value selects defaults derived from the number of CPUs.
	Tuning Tuning

	// ThreadParking parks waiters with futex(2) on linux. Each blocked
	// goroutine then holds one OS thread until it wakes, bounding the
	// number of simultaneous waiters by runtime/debug.SetMaxThreads.
	// Ignored on other platforms.
	ThreadParking bool
}

var defaultTuning = spin.DefaultTuning()

// StampedLock is a read/write lock with optimistic reads.
//
// The zero value is an unlocked lock using default tuning. A StampedLock
// must not be copied after first use.
//
// Thread Safety: All methods are safe for concurrent calls. Holds are not
// owned by goroutines: a stamp may be released by any goroutine that has
// it.
type StampedLock struct {
	// state holds the state word minus origin, so that the zero value
	// is a valid unlocked lock whose stamps are never zero.
	state          atomic.Uint64
	readerOverflow atomic.Int32
	whead          atomic.Pointer[wnode]
	wtail          atomic.Pointer[wnode]
	tuning         *spin.Tuning
	parking        park.Kind
}

// New returns an unlocked StampedLock with default tuning.
func New() *StampedLock {
	return &StampedLock{}
}

// NewWithOptions returns an unlocked StampedLock configured by opts.
func NewWithOptions(opts Options) *StampedLock {
	t := opts.Tuning.Normalize()
	sl := &StampedLock{tuning: &t}
	if opts.ThreadParking {
		sl.parking = park.Futex.Effective()
	}
	return sl
}

func (sl *StampedLock) tune() *spin.Tuning {
	if sl.tuning != nil {
		return sl.tuning
	}
	return &defaultTuning
}

// Parking names the mechanism waiters block with: "channel" or "futex".
func (sl *StampedLock) Parking() string {
	return sl.parking.String()
}

func (sl *StampedLock) load() uint64 {
	return sl.state.Load() + origin
}

func (sl *StampedLock) cas(old, next uint64) bool {
	return sl.state.CompareAndSwap(old-origin, next-origin)
}

func (sl *StampedLock) store(v uint64) {
	sl.state.Store(v - origin)
}

// WriteLock exclusively acquires the lock, blocking if necessary.
func (sl *StampedLock) WriteLock() Stamp {
	if s := sl.load(); s&aBits == 0 && sl.cas(s, s+wBit) {
		return Stamp(s + wBit)
	}
	st, _ := sl.acquireWrite(context.Background(), time.Time{})
	return st
}

// TryWriteLock exclusively acquires the lock if it is immediately
// available, and returns zero otherwise.
func (sl *StampedLock) TryWriteLock() Stamp {
	if s := sl.load(); s&aBits == 0 && sl.cas(s, s+wBit) {
		return Stamp(s + wBit)
	}
	return 0
}

// TryWriteLockTimeout exclusively acquires the lock if it becomes
// available within d. It returns zero and a nil error on timeout, and an
// error wrapping aqs.ErrInterrupted if ctx ends first.
func (sl *StampedLock) TryWriteLockTimeout(ctx context.Context, d time.Duration) (Stamp, error) {
	if ctx.Err() != nil {
		return 0, aqs.Interrupted(ctx)
	}
	if st := sl.TryWriteLock(); st != 0 {
		return st, nil
	}
	if d <= 0 {
		return 0, nil
	}
	return sl.acquireWrite(ctx, time.Now().Add(d))
}

// WriteLockInterruptibly exclusively acquires the lock, blocking until it
// is available or ctx ends.
func (sl *StampedLock) WriteLockInterruptibly(ctx context.Context) (Stamp, error) {
	if ctx.Err() != nil {
		return 0, aqs.Interrupted(ctx)
	}
	return sl.acquireWrite(ctx, time.Time{})
}

// ReadLock non-exclusively acquires the lock, blocking if necessary.
func (sl *StampedLock) ReadLock() Stamp {
	s := sl.load()
	if sl.whead.Load() == sl.wtail.Load() && s&aBits < rFull && sl.cas(s, s+rUnit) {
		return Stamp(s + rUnit)
	}
	st, _ := sl.acquireRead(context.Background(), time.Time{})
	return st
}

// TryReadLock non-exclusively acquires the lock if it is not write-held,
// and returns zero otherwise.
func (sl *StampedLock) TryReadLock() Stamp {
	for {
		s := sl.load()
		m := s & aBits
		switch {
		case m == wBit:
			return 0
		case m < rFull:
			if sl.cas(s, s+rUnit) {
				return Stamp(s + rUnit)
			}
		default:
			if next := sl.tryIncReaderOverflow(s); next != 0 {
				return Stamp(next)
			}
		}
	}
}

// TryReadLockTimeout non-exclusively acquires the lock if it becomes
// available within d. Timeout and cancellation are reported as for
// TryWriteLockTimeout.
func (sl *StampedLock) TryReadLockTimeout(ctx context.Context, d time.Duration) (Stamp, error) {
	if ctx.Err() != nil {
		return 0, aqs.Interrupted(ctx)
	}
	if s := sl.load(); s&aBits != wBit {
		if m := s & aBits; m < rFull {
			if sl.cas(s, s+rUnit) {
				return Stamp(s + rUnit), nil
			}
		} else if next := sl.tryIncReaderOverflow(s); next != 0 {
			return Stamp(next), nil
		}
	}
	if d <= 0 {
		return 0, nil
	}
	return sl.acquireRead(ctx, time.Now().Add(d))
}

// ReadLockInterruptibly non-exclusively acquires the lock, blocking until
// it is available or ctx ends.
func (sl *StampedLock) ReadLockInterruptibly(ctx context.Context) (Stamp, error) {
	if ctx.Err() != nil {
		return 0, aqs.Interrupted(ctx)
	}
	return sl.acquireRead(ctx, time.Time{})
}

// TryOptimisticRead returns a stamp that can later be validated, or zero
// if the lock is write-held.
func (sl *StampedLock) TryOptimisticRead() Stamp {
	if s := sl.load(); s&wBit == 0 {
		return Stamp(s & sBits)
	}
	return 0
}

// Validate reports whether no write lock has been acquired since stamp
// was issued. It always returns false for a zero stamp.
//
// Validating a read or write stamp that has not been released yet
// returns true.
func (sl *StampedLock) Validate(stamp Stamp) bool {
	return uint64(stamp)&sBits == sl.load()&sBits
}

// UnlockWrite releases the write lock held under stamp.
// It panics with *aqs.MonitorStateError if stamp does not match.
func (sl *StampedLock) UnlockWrite(stamp Stamp) {
	s := sl.load()
	if s != uint64(stamp) || s&wBit == 0 {
		illegal("UnlockWrite")
	}
	sl.releaseWrite(s)
}

// UnlockRead releases one read hold taken under stamp.
// It panics with *aqs.MonitorStateError if stamp does not match.
func (sl *StampedLock) UnlockRead(stamp Stamp) {
	st := uint64(stamp)
	for {
		s := sl.load()
		m := s & aBits
		if s&sBits != st&sBits || st&aBits == 0 || m == 0 || m == wBit {
			illegal("UnlockRead")
		}
		if sl.tryReleaseRead(s) {
			return
		}
	}
}

// Unlock releases the hold matching stamp, whichever mode it is in.
// It panics with *aqs.MonitorStateError if stamp does not match.
func (sl *StampedLock) Unlock(stamp Stamp) {
	st := uint64(stamp)
	a := st & aBits
	for {
		s := sl.load()
		if s&sBits != st&sBits {
			break
		}
		m := s & aBits
		if m == 0 {
			break
		}
		if m == wBit {
			if a != m {
				break
			}
			sl.releaseWrite(s)
			return
		}
		if a == 0 || a >= wBit {
			break
		}
		if sl.tryReleaseRead(s) {
			return
		}
	}
	illegal("Unlock")
}

// TryUnlockWrite releases the write lock if it is held, without a stamp.
// It reports whether a hold was released.
func (sl *StampedLock) TryUnlockWrite() bool {
	if s := sl.load(); s&wBit != 0 {
		sl.releaseWrite(s)
		return true
	}
	return false
}

// TryUnlockRead releases one read hold if any is held, without a stamp.
// It reports whether a hold was released.
func (sl *StampedLock) TryUnlockRead() bool {
	for {
		s := sl.load()
		if m := s & aBits; m == 0 || m >= wBit {
			return false
		}
		if sl.tryReleaseRead(s) {
			return true
		}
	}
}

// TryConvertToWriteLock upgrades stamp to a write stamp.
//
// A write stamp is returned as is. A read stamp is upgraded if the caller
// is the only reader. An optimistic stamp is upgraded if the lock is free
// and the stamp still validates. Zero is returned otherwise, and the
// original hold (if any) is kept.
func (sl *StampedLock) TryConvertToWriteLock(stamp Stamp) Stamp {
	st := uint64(stamp)
	a := st & aBits
	for {
		s := sl.load()
		if s&sBits != st&sBits {
			return 0
		}
		switch m := s & aBits; {
		case m == 0:
			if a != 0 {
				return 0
			}
			if sl.cas(s, s+wBit) {
				return Stamp(s + wBit)
			}
		case m == wBit:
			if a != m {
				return 0
			}
			return stamp
		case m == rUnit && a != 0:
			if next := s - rUnit + wBit; sl.cas(s, next) {
				return Stamp(next)
			}
		default:
			return 0
		}
	}
}

// TryConvertToReadLock downgrades a write stamp to a read stamp, returns a
// read stamp unchanged, or takes a read hold for a valid optimistic stamp.
// Zero is returned otherwise.
func (sl *StampedLock) TryConvertToReadLock(stamp Stamp) Stamp {
	st := uint64(stamp)
	a := st & aBits
	for {
		s := sl.load()
		if s&sBits != st&sBits {
			return 0
		}
		m := s & aBits
		switch {
		case m == 0:
			if a != 0 {
				return 0
			}
			if sl.cas(s, s+rUnit) {
				return Stamp(s + rUnit)
			}
		case m == wBit:
			if a != m {
				return 0
			}
			next := s + wBit + rUnit
			sl.store(next)
			sl.signalHead()
			return Stamp(next)
		case a != 0 && a < wBit:
			return stamp
		default:
			return 0
		}
	}
}

// TryConvertToOptimisticRead releases the hold of stamp, if any, and
// returns an optimistic stamp. Zero is returned if stamp is not valid.
func (sl *StampedLock) TryConvertToOptimisticRead(stamp Stamp) Stamp {
	st := uint64(stamp)
	a := st & aBits
	for {
		s := sl.load()
		if s&sBits != st&sBits {
			return 0
		}
		m := s & aBits
		switch {
		case m == 0:
			if a != 0 {
				return 0
			}
			return Stamp(s)
		case m == wBit:
			if a != m {
				return 0
			}
			return Stamp(sl.releaseWrite(s))
		case a == 0 || a >= wBit:
			return 0
		case m < rFull:
			if next := s - rUnit; sl.cas(s, next) {
				if m == rUnit {
					sl.signalHead()
				}
				return Stamp(next & sBits)
			}
		default:
			if next := sl.tryDecReaderOverflow(s); next != 0 {
				return Stamp(next & sBits)
			}
		}
	}
}

// IsWriteLocked reports whether the lock is currently held exclusively.
func (sl *StampedLock) IsWriteLocked() bool {
	return sl.load()&wBit != 0
}

// IsReadLocked reports whether the lock is currently held non-exclusively.
func (sl *StampedLock) IsReadLocked() bool {
	return sl.load()&rBits != 0
}

// ReadLockCount returns the number of read holds. The value is a
// snapshot intended for monitoring, not for synchronization.
func (sl *StampedLock) ReadLockCount() int {
	return sl.readLockCount(sl.load())
}

func (sl *StampedLock) readLockCount(s uint64) int {
	readers := int(s & rBits)
	if readers >= int(rFull) {
		readers = int(rFull) + int(sl.readerOverflow.Load())
	}
	return readers
}

// String identifies the lock and its state: "[Unlocked]",
// "[Write-locked]" or "[Read-locks:N]".
func (sl *StampedLock) String() string {
	s := sl.load()
	switch {
	case s&aBits == 0:
		return "StampedLock[Unlocked]"
	case s&wBit != 0:
		return "StampedLock[Write-locked]"
	default:
		return fmt.Sprintf("StampedLock[Read-locks:%d]", sl.readLockCount(s))
	}
}

// IsWriteLockStamp reports whether stamp was returned by a successful
// write-lock operation.
func IsWriteLockStamp(stamp Stamp) bool {
	return uint64(stamp)&aBits == wBit
}

// IsReadLockStamp reports whether stamp was returned by a successful
// read-lock operation.
func IsReadLockStamp(stamp Stamp) bool {
	return uint64(stamp)&rBits != 0
}

// IsLockStamp reports whether stamp represents holding a lock.
func IsLockStamp(stamp Stamp) bool {
	return uint64(stamp)&aBits != 0
}

// IsOptimisticReadStamp reports whether stamp was returned by a
// successful optimistic read.
func IsOptimisticReadStamp(stamp Stamp) bool {
	return uint64(stamp)&aBits == 0 && stamp != 0
}

// AsReadLocker returns a sync.Locker whose Lock and Unlock take and
// release read holds of sl without stamps.
func (sl *StampedLock) AsReadLocker() sync.Locker {
	return readLocker{sl}
}

// AsWriteLocker returns a sync.Locker whose Lock and Unlock take and
// release the write lock of sl without stamps.
func (sl *StampedLock) AsWriteLocker() sync.Locker {
	return writeLocker{sl}
}

type readLocker struct{ sl *StampedLock }

func (l readLocker) Lock() { l.sl.ReadLock() }

func (l readLocker) Unlock() {
	if !l.sl.TryUnlockRead() {
		illegal("Unlock")
	}
}

type writeLocker struct{ sl *StampedLock }

func (l writeLocker) Lock() { l.sl.WriteLock() }

func (l writeLocker) Unlock() {
	if !l.sl.TryUnlockWrite() {
		illegal("Unlock")
	}
}

func illegal(op string) {
	aqs.IllegalState(op, "stamp does not match lock state")
}

// releaseWrite clears the write bit of s, advancing the sequence, and
// wakes the first waiter. It returns the new state.
func (sl *StampedLock) releaseWrite(s uint64) uint64 {
	next := s + wBit
	if next == 0 {
		next = origin
	}
	sl.store(next)
	sl.signalHead()
	return next
}

// tryReleaseRead drops one reader from s. It fails on contention.
func (sl *StampedLock) tryReleaseRead(s uint64) bool {
	m := s & aBits
	if m < rFull {
		if !sl.cas(s, s-rUnit) {
			return false
		}
		if m == rUnit {
			sl.signalHead()
		}
		return true
	}
	return sl.tryDecReaderOverflow(s) != 0
}

func (sl *StampedLock) signalHead() {
	if h := sl.whead.Load(); h != nil && h.status.Load() != 0 {
		sl.release(h)
	}
}

// tryIncReaderOverflow adds a reader beyond the inline count. The reader
// bits are set to their all-ones value while readerOverflow is updated.
// It returns zero if the spinlock was not acquired.
func (sl *StampedLock) tryIncReaderOverflow(s uint64) uint64 {
	if s&aBits == rFull {
		if sl.cas(s, s|rBits) {
			sl.readerOverflow.Add(1)
			sl.store(s)
			return s
		}
	} else if spin.Probe()&sl.tune().OverflowYieldRate == 0 {
		spin.Yield()
	}
	return 0
}

// tryDecReaderOverflow is the inverse of tryIncReaderOverflow.
func (sl *StampedLock) tryDecReaderOverflow(s uint64) uint64 {
	if s&aBits == rFull {
		if sl.cas(s, s|rBits) {
			next := s
			if r := sl.readerOverflow.Load(); r > 0 {
				sl.readerOverflow.Store(r - 1)
			} else {
				next = s - rUnit
			}
			sl.store(next)
			return next
		}
	} else if spin.Probe()&sl.tune().OverflowYieldRate == 0 {
		spin.Yield()
	}
	return 0
}

// release wakes the successor of h, scanning back from the tail if the
// next link is missing or cancelled.
func (sl *StampedLock) release(h *wnode) {
	if h == nil {
		return
	}
	h.status.CompareAndSwap(waiting, 0)
	q := h.next.Load()
	if q == nil || q.status.Load() == cancelled {
		for t := sl.wtail.Load(); t != nil && t != h; t = t.prev.Load() {
			if t.status.Load() <= 0 {
				q = t
			}
		}
	}
	if q != nil {
		if w := q.thread.Load(); w != nil {
			w.Unpark()
		}
	}
}

// releaseCowaiters pops and wakes every reader on the cowait stack of h.
func releaseCowaiters(h *wnode) {
	for c := h.cowait.Load(); c != nil; c = h.cowait.Load() {
		if h.cowait.CompareAndSwap(c, c.cowait.Load()) {
			if w := c.thread.Load(); w != nil {
				w.Unpark()
			}
		}
	}
}

// watch arranges for p to be unparked when ctx ends.
func watch(ctx context.Context, p *park.Parker) func() bool {
	if ctx.Done() == nil {
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, p.Unpark)
}

func parkUntil(p *park.Parker, wait time.Duration) {
	if wait == 0 {
		p.Park()
		return
	}
	p.ParkTimeout(wait)
}

// remaining returns the time left until deadline, zero meaning no
// deadline, and reports whether the deadline has passed.
func remaining(deadline time.Time) (time.Duration, bool) {
	if deadline.IsZero() {
		return 0, false
	}
	d := time.Until(deadline)
	return d, d <= 0
}

// acquireWrite spins while the queue is trivial, enqueues a writer node,
// then spins at the head with a growing budget before parking.
func (sl *StampedLock) acquireWrite(ctx context.Context, deadline time.Time) (Stamp, error) {
	t := sl.tune()
	seed := spin.NewSeed()
	pk := park.NewKind(sl.parking)
	defer watch(ctx, pk)()

	var node, p *wnode
	for spins := -1; ; {
		s := sl.load()
		m := s & aBits
		if m == 0 {
			if sl.cas(s, s+wBit) {
				return Stamp(s + wBit), nil
			}
		} else if spins < 0 {
			spins = 0
			if m == wBit && sl.wtail.Load() == sl.whead.Load() {
				spins = t.Spins
			}
		} else if spins > 0 {
			if seed.Next() >= 0 {
				spins--
			}
		} else if p = sl.wtail.Load(); p == nil {
			hd := &wnode{mode: wMode}
			if sl.whead.CompareAndSwap(nil, hd) {
				sl.wtail.Store(hd)
			}
		} else if node == nil {
			node = newWNode(wMode, p)
		} else if node.prev.Load() != p {
			node.prev.Store(p)
		} else if sl.wtail.CompareAndSwap(p, node) {
			p.next.Store(node)
			break
		}
	}

	for spins := -1; ; {
		h := sl.whead.Load()
		if h == p {
			if spins < 0 {
				spins = t.HeadSpins
			} else if spins < t.MaxHeadSpins {
				spins <<= 1
			}
			for k := spins; ; {
				if s := sl.load(); s&aBits == 0 {
					if sl.cas(s, s+wBit) {
						sl.whead.Store(node)
						node.prev.Store(nil)
						return Stamp(s + wBit), nil
					}
				} else if seed.Next() >= 0 {
					if k--; k <= 0 {
						break
					}
				}
			}
		} else if h != nil {
			releaseCowaiters(h)
		}
		if sl.whead.Load() != h {
			continue
		}
		if np := node.prev.Load(); np != p {
			if np != nil {
				p = np
				p.next.Store(node)
			}
		} else if ps := p.status.Load(); ps == 0 {
			p.status.CompareAndSwap(0, waiting)
		} else if ps == cancelled {
			if pp := p.prev.Load(); pp != nil {
				node.prev.Store(pp)
				pp.next.Store(node)
			}
		} else {
			wait, expired := remaining(deadline)
			if expired {
				return 0, sl.cancelWaiter(ctx, node, node, false)
			}
			node.thread.Store(pk)
			if p.status.Load() < 0 && (p != h || sl.load()&aBits != 0) &&
				sl.whead.Load() == h && node.prev.Load() == p {
				parkUntil(pk, wait)
			}
			node.thread.Store(nil)
			if ctx.Err() != nil {
				return 0, sl.cancelWaiter(ctx, node, node, true)
			}
		}
	}
}

// tryAcquireRead makes one attempt to add a reader to s. next is zero if
// the attempt failed; m reports the mode bits that were observed.
func (sl *StampedLock) tryAcquireRead(s uint64) (next uint64, m uint64) {
	m = s & aBits
	switch {
	case m < rFull:
		if sl.cas(s, s+rUnit) {
			return s + rUnit, m
		}
	case m < wBit:
		return sl.tryIncReaderOverflow(s), m
	}
	return 0, m
}

// acquireRead is acquireWrite for readers. A reader that finds a reader
// node at the tail pushes itself onto that node's cowait stack instead of
// enqueueing, and is released together with it.
func (sl *StampedLock) acquireRead(ctx context.Context, deadline time.Time) (Stamp, error) {
	t := sl.tune()
	seed := spin.NewSeed()
	pk := park.NewKind(sl.parking)
	defer watch(ctx, pk)()

	var node, p *wnode
	for spins := -1; ; {
		h := sl.whead.Load()
		p = sl.wtail.Load()
		if h == p {
			for {
				next, m := sl.tryAcquireRead(sl.load())
				if next != 0 {
					return Stamp(next), nil
				}
				if m < wBit {
					continue
				}
				if spins > 0 {
					if seed.Next() >= 0 {
						spins--
					}
					continue
				}
				if spins == 0 {
					nh, np := sl.whead.Load(), sl.wtail.Load()
					if nh == h && np == p {
						break
					}
					h, p = nh, np
					if h != p {
						break
					}
				}
				spins = t.Spins
			}
		}
		if p == nil {
			hd := &wnode{mode: wMode}
			if sl.whead.CompareAndSwap(nil, hd) {
				sl.wtail.Store(hd)
			}
		} else if node == nil {
			node = newWNode(rMode, p)
		} else if h == p || p.mode != rMode {
			if node.prev.Load() != p {
				node.prev.Store(p)
			} else if sl.wtail.CompareAndSwap(p, node) {
				p.next.Store(node)
				break
			}
		} else {
			c := p.cowait.Load()
			node.cowait.Store(c)
			if !p.cowait.CompareAndSwap(c, node) {
				node.cowait.Store(nil)
				continue
			}
			st, done, err := sl.awaitGroup(ctx, deadline, pk, node, p)
			if done {
				return st, err
			}
			node = nil
		}
	}

	for spins := -1; ; {
		h := sl.whead.Load()
		if h == p {
			if spins < 0 {
				spins = t.HeadSpins
			} else if spins < t.MaxHeadSpins {
				spins <<= 1
			}
			for k := spins; ; {
				next, m := sl.tryAcquireRead(sl.load())
				if next != 0 {
					sl.whead.Store(node)
					node.prev.Store(nil)
					releaseCowaiters(node)
					return Stamp(next), nil
				}
				if m >= wBit && seed.Next() >= 0 {
					if k--; k <= 0 {
						break
					}
				}
			}
		} else if h != nil {
			releaseCowaiters(h)
		}
		if sl.whead.Load() != h {
			continue
		}
		if np := node.prev.Load(); np != p {
			if np != nil {
				p = np
				p.next.Store(node)
			}
		} else if ps := p.status.Load(); ps == 0 {
			p.status.CompareAndSwap(0, waiting)
		} else if ps == cancelled {
			if pp := p.prev.Load(); pp != nil {
				node.prev.Store(pp)
				pp.next.Store(node)
			}
		} else {
			wait, expired := remaining(deadline)
			if expired {
				return 0, sl.cancelWaiter(ctx, node, node, false)
			}
			node.thread.Store(pk)
			if p.status.Load() < 0 && (p != h || sl.load()&aBits == wBit) &&
				sl.whead.Load() == h && node.prev.Load() == p {
				parkUntil(pk, wait)
			}
			node.thread.Store(nil)
			if ctx.Err() != nil {
				return 0, sl.cancelWaiter(ctx, node, node, true)
			}
		}
	}
}

// awaitGroup waits as a co-waiter of the reader node p. It returns done
// false when p stopped being a usable group, in which case the caller
// discards node and starts over.
func (sl *StampedLock) awaitGroup(ctx context.Context, deadline time.Time, pk *park.Parker, node, p *wnode) (st Stamp, done bool, err error) {
	for {
		h := sl.whead.Load()
		if h != nil {
			if c := h.cowait.Load(); c != nil && h.cowait.CompareAndSwap(c, c.cowait.Load()) {
				if w := c.thread.Load(); w != nil {
					w.Unpark()
				}
			}
		}
		pp := p.prev.Load()
		if h == pp || h == p || pp == nil {
			for {
				next, m := sl.tryAcquireRead(sl.load())
				if next != 0 {
					return Stamp(next), true, nil
				}
				if m >= wBit {
					break
				}
			}
		}
		if sl.whead.Load() != h || p.prev.Load() != pp {
			continue
		}
		if pp == nil || h == p || p.status.Load() > 0 {
			return 0, false, nil
		}
		wait, expired := remaining(deadline)
		if expired {
			return 0, true, sl.cancelWaiter(ctx, node, p, false)
		}
		node.thread.Store(pk)
		if (h != pp || sl.load()&aBits == wBit) &&
			sl.whead.Load() == h && p.prev.Load() == pp {
			parkUntil(pk, wait)
		}
		node.thread.Store(nil)
		if ctx.Err() != nil {
			return 0, true, sl.cancelWaiter(ctx, node, p, true)
		}
	}
}

// cancelWaiter marks node cancelled and unsplices it. group is node itself
// for a queued node, or the reader node whose cowait stack holds node.
// Afterwards the first waiter is released if it may now proceed.
func (sl *StampedLock) cancelWaiter(ctx context.Context, node, group *wnode, interrupted bool) error {
	node.status.Store(cancelled)
	for p := group; ; {
		q := p.cowait.Load()
		if q == nil {
			break
		}
		if q.status.Load() == cancelled {
			p.cowait.CompareAndSwap(q, q.cowait.Load())
			p = group
		} else {
			p = q
		}
	}
	if group == node {
		for r := group.cowait.Load(); r != nil; r = r.cowait.Load() {
			if w := r.thread.Load(); w != nil {
				w.Unpark()
			}
		}
		for pred := node.prev.Load(); pred != nil; {
			var succ *wnode
			for {
				succ = node.next.Load()
				if succ != nil && succ.status.Load() != cancelled {
					break
				}
				var q *wnode
				for t := sl.wtail.Load(); t != nil && t != node; t = t.prev.Load() {
					if t.status.Load() != cancelled {
						q = t
					}
				}
				if succ == q || node.next.CompareAndSwap(succ, q) {
					succ = q
					if succ == nil && node == sl.wtail.Load() {
						sl.wtail.CompareAndSwap(node, pred)
					}
					break
				}
			}
			if pred.next.Load() == node {
				pred.next.CompareAndSwap(node, succ)
			}
			if succ != nil {
				if w := succ.thread.Load(); w != nil {
					succ.thread.Store(nil)
					w.Unpark()
				}
			}
			pp := pred.prev.Load()
			if pred.status.Load() != cancelled || pp == nil {
				break
			}
			node.prev.Store(pp)
			pp.next.CompareAndSwap(pred, succ)
			pred = pp
		}
	}

	for {
		h := sl.whead.Load()
		if h == nil {
			break
		}
		q := h.next.Load()
		if q == nil || q.status.Load() == cancelled {
			for t := sl.wtail.Load(); t != nil && t != h; t = t.prev.Load() {
				if t.status.Load() <= 0 {
					q = t
				}
			}
		}
		if h == sl.whead.Load() {
			s := sl.load()
			if q != nil && h.status.Load() == 0 && s&aBits != wBit &&
				(s&aBits == 0 || q.mode == rMode) {
				sl.release(h)
			}
			break
		}
	}
	if interrupted || ctx.Err() != nil {
		return aqs.Interrupted(ctx)
	}
	return nil
}
