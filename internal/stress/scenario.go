package stress

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/kolkov/queuedsync/aqs"
	"github.com/kolkov/queuedsync/locks"
	"github.com/kolkov/queuedsync/stamped"
)

// ErrUnknownScenario is returned by Run for a scenario name that does not
// exist.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a named workload.
type Scenario struct {
	Name        string
	Description string

	newRound func(cfg Config, col *Collector) round
}

// round is one execution of a scenario. work runs on each worker
// goroutine; finish runs once after every worker returned and checks the
// final state.
type round interface {
	work(ctx context.Context, id int)
	finish()
}

var scenarios = []Scenario{
	{
		Name:        "mutex",
		Description: "nonfair ReentrantLock: exclusion, reentrancy, timeouts, cancellation",
		newRound:    newLockRound(false),
	},
	{
		Name:        "fair",
		Description: "fair ReentrantLock: exclusion without barging",
		newRound:    newLockRound(true),
	},
	{
		Name:        "shared",
		Description: "Semaphore and CountDownLatch: permit bound, release propagation",
		newRound:    newSharedRound,
	},
	{
		Name:        "stamped",
		Description: "StampedLock: write exclusion, optimistic validation, upgrades",
		newRound:    newStampedRound,
	},
	{
		Name:        "condition",
		Description: "bounded buffer on ReentrantLock conditions: no lost items or signals",
		newRound:    newBufferRound,
	},
}

// Scenarios returns every available scenario.
func Scenarios() []Scenario {
	return append([]Scenario(nil), scenarios...)
}

// Names returns the names of every available scenario, in run order.
func Names() []string {
	names := make([]string, len(scenarios))
	for i, sc := range scenarios {
		names[i] = sc.Name
	}
	return names
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, sc := range scenarios {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Bounds for the short waits mixed into every workload.
const (
	maxTimedWait  = 200 * time.Microsecond
	maxCancelWait = 300 * time.Microsecond
)

func workerRand(id int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(id), 0x5eed)) //nolint:gosec // G404: workload shape, not security
}

func randWait(rng *rand.Rand, limit time.Duration) time.Duration {
	return time.Duration(rng.Int64N(int64(limit)))
}

// lockRound hammers a ReentrantLock.
type lockRound struct {
	col        *Collector
	lock       *locks.ReentrantLock
	iterations int

	inside   atomic.Int32
	acquired atomic.Int64
	counter  int64 // guarded by lock
}

func newLockRound(fair bool) func(Config, *Collector) round {
	return func(cfg Config, col *Collector) round {
		return &lockRound{
			col:        col,
			lock:       locks.NewReentrantLockWithOptions(fair, cfg.options()),
			iterations: cfg.Iterations,
		}
	}
}

func (r *lockRound) work(ctx context.Context, id int) {
	rng := workerRand(id)
	for i := 0; i < r.iterations && ctx.Err() == nil; i++ {
		switch rng.IntN(4) {
		case 0:
			r.lock.Lock()
		case 1:
			if !r.lock.TryLock() {
				continue
			}
		case 2:
			ok, err := r.lock.TryLockTimeout(ctx, randWait(rng, maxTimedWait))
			if err != nil {
				r.col.Cancelled()
				continue
			}
			if !ok {
				r.col.Timeout()
				continue
			}
		default:
			cctx, cancel := context.WithTimeout(ctx, randWait(rng, maxCancelWait))
			err := r.lock.LockInterruptibly(cctx)
			cancel()
			if err != nil {
				r.col.Cancelled()
				continue
			}
		}
		r.critical(rng)
	}
}

func (r *lockRound) critical(rng *rand.Rand) {
	if n := r.inside.Add(1); n != 1 {
		r.col.Violation("%d goroutines inside the critical section", n)
	}
	if rng.IntN(8) == 0 {
		r.lock.Lock()
		if n := r.lock.HoldCount(); n != 2 {
			r.col.Violation("reentrant hold count %d, want 2", n)
		}
		r.lock.Unlock()
	}
	if rng.IntN(64) == 0 {
		r.col.ObserveQueue(r.lock.QueueLength())
	}
	r.counter++
	r.acquired.Add(1)
	r.inside.Add(-1)
	r.lock.Unlock()
	r.col.Op()
}

func (r *lockRound) finish() {
	if r.counter != r.acquired.Load() {
		r.col.Violation("counter %d after %d acquisitions", r.counter, r.acquired.Load())
	}
	if r.lock.IsLocked() {
		r.col.Violation("lock still held after all workers returned: %s", r.lock)
	}
	if n := r.lock.QueueLength(); n != 0 {
		r.col.Violation("%d waiters still queued after all workers returned", n)
	}
}

// sharedRound bounds permit holders with a Semaphore and closes with a
// CountDownLatch every worker waits on.
type sharedRound struct {
	col        *Collector
	sem        *locks.Semaphore
	latch      *locks.CountDownLatch
	permits    int32
	iterations int

	held atomic.Int32
}

func newSharedRound(cfg Config, col *Collector) round {
	permits := int32(max(2, cfg.Goroutines/2)) //nolint:gosec // G115: bounded by goroutine count
	return &sharedRound{
		col:        col,
		sem:        locks.NewSemaphoreWithOptions(permits, false, cfg.options()),
		latch:      locks.NewCountDownLatch(int32(cfg.Goroutines)), //nolint:gosec // G115: small count
		permits:    permits,
		iterations: cfg.Iterations,
	}
}

func (r *sharedRound) work(ctx context.Context, id int) {
	defer r.rendezvous(ctx)

	rng := workerRand(id)
	for i := 0; i < r.iterations && ctx.Err() == nil; i++ {
		n := int32(1 + rng.IntN(2)) //nolint:gosec // G115: 1 or 2
		switch rng.IntN(4) {
		case 0:
			r.sem.AcquireN(n)
		case 1:
			if !r.sem.TryAcquireN(n) {
				continue
			}
		case 2:
			ok, err := r.sem.TryAcquireTimeout(ctx, n, randWait(rng, maxTimedWait))
			if err != nil {
				r.col.Cancelled()
				continue
			}
			if !ok {
				r.col.Timeout()
				continue
			}
		default:
			cctx, cancel := context.WithTimeout(ctx, randWait(rng, maxCancelWait))
			err := r.sem.AcquireNContext(cctx, n)
			cancel()
			if err != nil {
				r.col.Cancelled()
				continue
			}
		}
		if h := r.held.Add(n); h > r.permits {
			r.col.Violation("%d permits held, only %d exist", h, r.permits)
		}
		if rng.IntN(64) == 0 {
			r.col.ObserveQueue(r.sem.QueueLength())
		}
		r.held.Add(-n)
		r.sem.ReleaseN(n)
		r.col.Op()
	}
}

// rendezvous counts the worker down and waits for the others, so every
// worker but the last is woken by shared-mode propagation.
func (r *sharedRound) rendezvous(ctx context.Context) {
	r.latch.CountDown()
	if err := r.latch.AwaitContext(ctx); err != nil {
		r.col.Cancelled()
	}
}

func (r *sharedRound) finish() {
	if n := r.sem.AvailablePermits(); n != r.permits {
		r.col.Violation("%d permits available after all workers returned, want %d", n, r.permits)
	}
	if n := r.latch.Count(); n != 0 {
		r.col.Violation("latch count %d after all workers returned", n)
	}
}

// stampedRound keeps x == -y under a StampedLock and checks every read
// mode observes that.
type stampedRound struct {
	col        *Collector
	sl         *stamped.StampedLock
	iterations int

	x, y     atomic.Int64
	writers  atomic.Int32
	readers  atomic.Int32
	writes   atomic.Int64
	upgrades atomic.Int64
}

func newStampedRound(cfg Config, col *Collector) round {
	return &stampedRound{
		col:        col,
		sl:         stamped.NewWithOptions(stamped.Options{Tuning: cfg.Tuning, ThreadParking: cfg.ThreadParking}),
		iterations: cfg.Iterations,
	}
}

func (r *stampedRound) work(ctx context.Context, id int) {
	rng := workerRand(id)
	for i := 0; i < r.iterations && ctx.Err() == nil; i++ {
		switch rng.IntN(6) {
		case 0:
			r.write(r.sl.WriteLock())
		case 1:
			st, err := r.sl.TryWriteLockTimeout(ctx, randWait(rng, maxTimedWait))
			if r.acquired(st, err) {
				r.write(st)
			}
		case 2:
			r.read(r.sl.ReadLock())
		case 3:
			cctx, cancel := context.WithTimeout(ctx, randWait(rng, maxCancelWait))
			st, err := r.sl.ReadLockInterruptibly(cctx)
			cancel()
			if r.acquired(st, err) {
				r.read(st)
			}
		case 4:
			st := r.sl.TryOptimisticRead()
			a, b := r.x.Load(), r.y.Load()
			if st != 0 && r.sl.Validate(st) && a != -b {
				r.col.Violation("validated optimistic read saw x=%d y=%d", a, b)
			}
			r.col.Op()
		default:
			st := r.sl.ReadLock()
			if w := r.sl.TryConvertToWriteLock(st); w != 0 {
				r.upgrades.Add(1)
				r.write(w)
			} else {
				r.read(st)
			}
		}
	}
}

func (r *stampedRound) acquired(st stamped.Stamp, err error) bool {
	switch {
	case err != nil:
		r.col.Cancelled()
		return false
	case st == 0:
		r.col.Timeout()
		return false
	}
	return true
}

func (r *stampedRound) write(w stamped.Stamp) {
	if n := r.writers.Add(1); n != 1 || r.readers.Load() != 0 {
		r.col.Violation("writer overlaps %d writers and %d readers", n-1, r.readers.Load())
	}
	v := r.x.Load() + 1
	r.x.Store(v)
	r.y.Store(-v)
	r.writes.Add(1)
	r.writers.Add(-1)
	r.sl.UnlockWrite(w)
	r.col.Op()
}

func (r *stampedRound) read(st stamped.Stamp) {
	r.readers.Add(1)
	if r.writers.Load() != 0 {
		r.col.Violation("reader overlaps a writer")
	}
	if a, b := r.x.Load(), r.y.Load(); a != -b {
		r.col.Violation("read hold saw x=%d y=%d", a, b)
	}
	r.readers.Add(-1)
	r.sl.UnlockRead(st)
	r.col.Op()
}

func (r *stampedRound) finish() {
	if x, w := r.x.Load(), r.writes.Load(); x != w {
		r.col.Violation("x=%d after %d writes", x, w)
	}
	if r.sl.IsWriteLocked() || r.sl.IsReadLocked() {
		r.col.Violation("lock still held after all workers returned: %s", r.sl)
	}
}

// bufferRound moves items through a bounded ring buffer guarded by a
// ReentrantLock with notFull and notEmpty conditions.
type bufferRound struct {
	col        *Collector
	lock       *locks.ReentrantLock
	notFull    *aqs.Condition
	notEmpty   *aqs.Condition
	producers  int
	consumers  int
	iterations int

	items   []int64 // guarded by lock
	head    int     // guarded by lock
	count   int     // guarded by lock
	stopped bool    // guarded by lock

	produced atomic.Int64
	consumed atomic.Int64
	taken    atomic.Int64
	cut      atomic.Bool // some worker saw its context end
}

const bufferCapacity = 4

func newBufferRound(cfg Config, col *Collector) round {
	lock := locks.NewReentrantLockWithOptions(false, cfg.options())
	producers := cfg.Goroutines / 2
	return &bufferRound{
		col:        col,
		lock:       lock,
		notFull:    lock.NewCondition(),
		notEmpty:   lock.NewCondition(),
		producers:  producers,
		consumers:  cfg.Goroutines - producers,
		iterations: cfg.Iterations,
		items:      make([]int64, bufferCapacity),
	}
}

// quota returns how many items consumer c takes so that consumers drain
// exactly what producers put.
func (r *bufferRound) quota(c int) int {
	total := r.producers * r.iterations
	q := total / r.consumers
	if c < total%r.consumers {
		q++
	}
	return q
}

func (r *bufferRound) work(ctx context.Context, id int) {
	defer context.AfterFunc(ctx, r.stop)()
	defer func() {
		if ctx.Err() != nil {
			r.cut.Store(true)
		}
	}()

	rng := workerRand(id)
	if id < r.producers {
		for i := 0; i < r.iterations && ctx.Err() == nil; i++ {
			v := int64(id*r.iterations + i + 1)
			if !r.put(ctx, rng, v) {
				return
			}
			r.produced.Add(v)
			r.col.Op()
		}
		return
	}
	for i := r.quota(id - r.producers); i > 0 && ctx.Err() == nil; i-- {
		v, ok := r.take(ctx, rng)
		if !ok {
			return
		}
		r.consumed.Add(v)
		r.taken.Add(1)
		r.col.Op()
	}
}

// stop wakes every waiter once the round's context ends; the peers they
// wait for may already have returned.
func (r *bufferRound) stop() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.stopped = true
	r.notFull.SignalAll()
	r.notEmpty.SignalAll()
}

// await waits on c either uninterruptibly or with a short timeout. It
// reports false when ctx ended, with the lock still held.
func (r *bufferRound) await(ctx context.Context, rng *rand.Rand, c *aqs.Condition) bool {
	if rng.IntN(2) == 0 {
		c.AwaitUninterruptibly()
		return true
	}
	left, err := c.AwaitTimeout(ctx, randWait(rng, maxTimedWait)+time.Microsecond)
	if err != nil {
		r.col.Cancelled()
		return false
	}
	if left <= 0 {
		r.col.Timeout()
	}
	return true
}

func (r *bufferRound) put(ctx context.Context, rng *rand.Rand, v int64) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for r.count == len(r.items) {
		if r.stopped || !r.await(ctx, rng, r.notFull) {
			return false
		}
	}
	r.items[(r.head+r.count)%len(r.items)] = v
	r.count++
	r.notEmpty.Signal()
	return true
}

func (r *bufferRound) take(ctx context.Context, rng *rand.Rand) (int64, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for r.count == 0 {
		if r.stopped || !r.await(ctx, rng, r.notEmpty) {
			return 0, false
		}
	}
	v := r.items[r.head]
	r.head = (r.head + 1) % len(r.items)
	r.count--
	r.notFull.Signal()
	return v, true
}

func (r *bufferRound) finish() {
	r.lock.Lock()
	left, stopped := r.count, r.stopped
	r.lock.Unlock()
	if stopped || r.cut.Load() {
		// The run was cut short; items legitimately remain.
		return
	}
	if p, c := r.produced.Load(), r.consumed.Load(); p != c {
		r.col.Violation("produced sum %d, consumed sum %d", p, c)
	}
	if n := int64(r.producers*r.iterations) - r.taken.Load(); left != 0 || n != 0 {
		r.col.Violation("%d items left in the buffer, %d never taken", left, n)
	}
}
