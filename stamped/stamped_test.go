package stamped

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolkov/queuedsync/aqs"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(20 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// queuedWriter reports whether a writer node sits at the tail of the queue.
func queuedWriter(sl *StampedLock) bool {
	h, tl := sl.whead.Load(), sl.wtail.Load()
	return tl != nil && tl != h && tl.mode == wMode
}

func expectMonitorPanic(t *testing.T, op string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		if r == nil {
			t.Fatalf("%s: expected panic", op)
		}
		err, ok := r.(error)
		if !ok {
			t.Fatalf("%s: panic value %v is not an error", op, r)
		}
		if !errors.Is(err, aqs.ErrIllegalMonitorState) {
			t.Errorf("%s: panic %v does not wrap ErrIllegalMonitorState", op, err)
		}
		var mse *aqs.MonitorStateError
		if !errors.As(err, &mse) {
			t.Errorf("%s: panic %v is not a *MonitorStateError", op, err)
		}
	}()
	fn()
}

// TestStampedLock_ZeroValue verifies the zero value is an unlocked lock.
func TestStampedLock_ZeroValue(t *testing.T) {
	var sl StampedLock

	if got := sl.String(); got != "StampedLock[Unlocked]" {
		t.Errorf("String() = %q", got)
	}
	st := sl.TryOptimisticRead()
	if st == 0 {
		t.Fatal("TryOptimisticRead on an unlocked lock returned 0")
	}
	if !sl.Validate(st) {
		t.Error("fresh optimistic stamp should validate")
	}
	if sl.Validate(0) {
		t.Error("zero stamp must never validate")
	}
	if sl.IsWriteLocked() || sl.IsReadLocked() || sl.ReadLockCount() != 0 {
		t.Error("zero value reports a hold")
	}
}

// TestStampedLock_OptimisticRoundTrip covers validation across reads and writes.
func TestStampedLock_OptimisticRoundTrip(t *testing.T) {
	sl := New()

	opt := sl.TryOptimisticRead()
	r := sl.ReadLock()
	if !sl.Validate(opt) {
		t.Error("a read hold must not invalidate an optimistic stamp")
	}
	if !sl.Validate(r) {
		t.Error("a held read stamp should validate")
	}
	sl.UnlockRead(r)
	if !sl.Validate(opt) {
		t.Error("releasing a read hold must not invalidate an optimistic stamp")
	}

	w := sl.WriteLock()
	if sl.Validate(opt) {
		t.Error("write acquisition must invalidate earlier optimistic stamps")
	}
	if sl.TryOptimisticRead() != 0 {
		t.Error("TryOptimisticRead while write-locked should return 0")
	}
	if !sl.Validate(w) {
		t.Error("a held write stamp should validate")
	}
	sl.UnlockWrite(w)

	if sl.Validate(opt) || sl.Validate(w) {
		t.Error("stamps from before the write must stay invalid")
	}
	if next := sl.TryOptimisticRead(); next == 0 || !sl.Validate(next) {
		t.Error("a new optimistic stamp should validate after the write")
	}
}

// TestStampedLock_StampsAdvance verifies each write yields a distinct stamp.
func TestStampedLock_StampsAdvance(t *testing.T) {
	sl := New()
	seen := make(map[Stamp]bool)
	for i := 0; i < 1000; i++ {
		w := sl.WriteLock()
		if w == 0 {
			t.Fatal("WriteLock returned 0")
		}
		if seen[w] {
			t.Fatalf("write stamp %#x repeated after %d writes", uint64(w), i)
		}
		seen[w] = true
		sl.UnlockWrite(w)
	}
}

// TestStampedLock_SequenceWrap verifies the sequence wraps to a non-zero origin.
func TestStampedLock_SequenceWrap(t *testing.T) {
	sl := New()
	sl.store(^uint64(0) &^ rBits &^ wBit) // last sequence value before wrap

	w := sl.WriteLock()
	sl.UnlockWrite(w)
	if got := sl.load(); got != origin {
		t.Errorf("state after wrap = %#x, want %#x", got, origin)
	}
	if sl.TryOptimisticRead() == 0 {
		t.Error("optimistic read after wrap returned 0")
	}
}

// TestStampedLock_WriteExclusion verifies writers exclude each other and readers.
func TestStampedLock_WriteExclusion(t *testing.T) {
	sl := New()
	const goroutines = 8
	const iterations = 1000

	var writers, readers, violations atomic.Int32
	counter := 0

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if (g+i)%3 == 0 {
					r := sl.ReadLock()
					readers.Add(1)
					if writers.Load() != 0 {
						violations.Add(1)
					}
					_ = counter
					readers.Add(-1)
					sl.UnlockRead(r)
					continue
				}
				w := sl.WriteLock()
				if writers.Add(1) != 1 || readers.Load() != 0 {
					violations.Add(1)
				}
				counter++
				writers.Add(-1)
				sl.UnlockWrite(w)
			}
		}(g)
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Errorf("%d exclusion violations", v)
	}
	want := 0
	for g := 0; g < goroutines; g++ {
		for i := 0; i < iterations; i++ {
			if (g+i)%3 != 0 {
				want++
			}
		}
	}
	if counter != want {
		t.Errorf("counter = %d, want %d", counter, want)
	}
	if got := sl.String(); got != "StampedLock[Unlocked]" {
		t.Errorf("String() after workload = %q", got)
	}
}

// TestStampedLock_ReadersShare verifies read holds coexist.
func TestStampedLock_ReadersShare(t *testing.T) {
	sl := New()
	r1 := sl.ReadLock()

	got := make(chan Stamp)
	go func() { got <- sl.ReadLock() }()

	var r2 Stamp
	select {
	case r2 = <-got:
	case <-time.After(10 * time.Second):
		t.Fatal("second reader blocked behind the first")
	}
	if n := sl.ReadLockCount(); n != 2 {
		t.Errorf("ReadLockCount() = %d, want 2", n)
	}
	if got := sl.String(); got != "StampedLock[Read-locks:2]" {
		t.Errorf("String() = %q", got)
	}
	if sl.TryWriteLock() != 0 {
		t.Error("TryWriteLock succeeded while read-locked")
	}
	sl.UnlockRead(r1)
	sl.UnlockRead(r2)
	if sl.IsReadLocked() {
		t.Error("still read-locked after both releases")
	}
}

// TestStampedLock_ReaderOverflow verifies holds beyond the inline reader
// width are counted and released exactly.
func TestStampedLock_ReaderOverflow(t *testing.T) {
	sl := New()
	const holds = 300

	stamps := make([]Stamp, 0, holds)
	for i := 0; i < holds; i++ {
		st := sl.TryReadLock()
		if st == 0 {
			t.Fatalf("TryReadLock #%d failed", i)
		}
		stamps = append(stamps, st)
	}
	if n := sl.ReadLockCount(); n != holds {
		t.Fatalf("ReadLockCount() = %d, want %d", n, holds)
	}
	if got, want := sl.String(), fmt.Sprintf("StampedLock[Read-locks:%d]", holds); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if sl.TryWriteLock() != 0 {
		t.Fatal("TryWriteLock succeeded with overflowed readers")
	}

	for i, st := range stamps {
		sl.UnlockRead(st)
		if n := sl.ReadLockCount(); n != holds-i-1 {
			t.Fatalf("after %d releases ReadLockCount() = %d", i+1, n)
		}
	}
	if sl.readerOverflow.Load() != 0 {
		t.Errorf("readerOverflow = %d after all releases", sl.readerOverflow.Load())
	}
	w := sl.TryWriteLock()
	if w == 0 {
		t.Fatal("TryWriteLock failed after all readers released")
	}
	sl.UnlockWrite(w)
}

// TestStampedLock_ReaderOverflowConcurrent exercises the overflow spinlock
// from many goroutines.
func TestStampedLock_ReaderOverflowConcurrent(t *testing.T) {
	sl := New()
	const goroutines = 16
	const perGoroutine = 40

	var wg sync.WaitGroup
	hold := make(chan struct{})
	var acquired atomic.Int32
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stamps := make([]Stamp, 0, perGoroutine)
			for i := 0; i < perGoroutine; i++ {
				stamps = append(stamps, sl.ReadLock())
				acquired.Add(1)
			}
			<-hold
			for _, st := range stamps {
				sl.UnlockRead(st)
			}
		}()
	}
	waitFor(t, "all read holds", func() bool { return acquired.Load() == goroutines*perGoroutine })
	if n := sl.ReadLockCount(); n != goroutines*perGoroutine {
		t.Errorf("ReadLockCount() = %d, want %d", n, goroutines*perGoroutine)
	}
	close(hold)
	wg.Wait()

	if n := sl.ReadLockCount(); n != 0 {
		t.Errorf("ReadLockCount() after release = %d", n)
	}
	if sl.TryWriteLock() == 0 {
		t.Error("TryWriteLock failed after all readers released")
	}
}

// TestStampedLock_Conversions covers the conversion table.
func TestStampedLock_Conversions(t *testing.T) {
	t.Run("optimistic to write", func(t *testing.T) {
		sl := New()
		w := sl.TryConvertToWriteLock(sl.TryOptimisticRead())
		if w == 0 || !sl.IsWriteLocked() {
			t.Fatal("conversion of a valid optimistic stamp failed")
		}
		sl.UnlockWrite(w)
	})

	t.Run("stale optimistic to write", func(t *testing.T) {
		sl := New()
		opt := sl.TryOptimisticRead()
		sl.UnlockWrite(sl.WriteLock())
		if sl.TryConvertToWriteLock(opt) != 0 {
			t.Fatal("stale stamp converted")
		}
		if sl.TryConvertToReadLock(opt) != 0 {
			t.Fatal("stale stamp converted to read")
		}
	})

	t.Run("sole reader upgrades", func(t *testing.T) {
		sl := New()
		r := sl.ReadLock()
		w := sl.TryConvertToWriteLock(r)
		if w == 0 {
			t.Fatal("sole reader failed to upgrade")
		}
		if sl.IsReadLocked() || !sl.IsWriteLocked() {
			t.Errorf("state after upgrade: %s", sl)
		}
		sl.UnlockWrite(w)
	})

	t.Run("shared reader cannot upgrade", func(t *testing.T) {
		sl := New()
		r1, r2 := sl.ReadLock(), sl.ReadLock()
		if sl.TryConvertToWriteLock(r1) != 0 {
			t.Fatal("upgrade succeeded with two readers")
		}
		if n := sl.ReadLockCount(); n != 2 {
			t.Errorf("failed upgrade changed the hold count to %d", n)
		}
		sl.UnlockRead(r1)
		sl.UnlockRead(r2)
	})

	t.Run("write stamp is kept", func(t *testing.T) {
		sl := New()
		w := sl.WriteLock()
		if got := sl.TryConvertToWriteLock(w); got != w {
			t.Errorf("TryConvertToWriteLock(write) = %#x, want %#x", uint64(got), uint64(w))
		}
		sl.UnlockWrite(w)
	})

	t.Run("write downgrades to read", func(t *testing.T) {
		sl := New()
		w := sl.WriteLock()
		r := sl.TryConvertToReadLock(w)
		if r == 0 || sl.IsWriteLocked() || sl.ReadLockCount() != 1 {
			t.Fatalf("downgrade failed: %s", sl)
		}
		if sl.Validate(w) {
			t.Error("write stamp still validates after downgrade")
		}
		if !sl.Validate(r) {
			t.Error("read stamp from downgrade does not validate")
		}
		if got := sl.TryConvertToReadLock(r); got != r {
			t.Error("read stamp should convert to itself")
		}
		sl.UnlockRead(r)
	})

	t.Run("optimistic to read", func(t *testing.T) {
		sl := New()
		r := sl.TryConvertToReadLock(sl.TryOptimisticRead())
		if r == 0 || sl.ReadLockCount() != 1 {
			t.Fatal("conversion to read failed")
		}
		sl.UnlockRead(r)
	})

	t.Run("write to optimistic", func(t *testing.T) {
		sl := New()
		w := sl.WriteLock()
		opt := sl.TryConvertToOptimisticRead(w)
		if opt == 0 || sl.IsWriteLocked() {
			t.Fatalf("release to optimistic failed: %s", sl)
		}
		if !IsOptimisticReadStamp(opt) || !sl.Validate(opt) {
			t.Error("returned stamp is not a valid optimistic stamp")
		}
	})

	t.Run("read to optimistic", func(t *testing.T) {
		sl := New()
		r := sl.ReadLock()
		opt := sl.TryConvertToOptimisticRead(r)
		if opt == 0 || sl.IsReadLocked() {
			t.Fatalf("release to optimistic failed: %s", sl)
		}
		if !sl.Validate(opt) {
			t.Error("returned stamp does not validate")
		}
		if sl.TryConvertToOptimisticRead(opt) != opt {
			t.Error("optimistic stamp should convert to itself")
		}
	})
}

// TestStampedLock_WrongStampPanics verifies stamp mismatches are contract
// violations.
func TestStampedLock_WrongStampPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(sl *StampedLock)
	}{
		{"UnlockWrite unheld", func(sl *StampedLock) { sl.UnlockWrite(sl.TryOptimisticRead()) }},
		{"UnlockWrite zero", func(sl *StampedLock) {
			sl.WriteLock()
			sl.UnlockWrite(0)
		}},
		{"UnlockWrite read stamp", func(sl *StampedLock) { sl.UnlockWrite(sl.ReadLock()) }},
		{"UnlockRead write stamp", func(sl *StampedLock) { sl.UnlockRead(sl.WriteLock()) }},
		{"UnlockRead unheld", func(sl *StampedLock) { sl.UnlockRead(sl.TryOptimisticRead()) }},
		{"UnlockRead stale", func(sl *StampedLock) {
			r := sl.ReadLock()
			sl.UnlockRead(r)
			sl.UnlockWrite(sl.WriteLock())
			sl.ReadLock()
			sl.UnlockRead(r)
		}},
		{"Unlock optimistic", func(sl *StampedLock) { sl.Unlock(sl.TryOptimisticRead()) }},
		{"Unlock mismatched mode", func(sl *StampedLock) {
			w := sl.WriteLock()
			sl.Unlock(w &^ Stamp(wBit) | 1)
		}},
		{"read view unheld", func(sl *StampedLock) { sl.AsReadLocker().Unlock() }},
		{"write view unheld", func(sl *StampedLock) { sl.AsWriteLocker().Unlock() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectMonitorPanic(t, tt.name, func() { tt.fn(New()) })
		})
	}
}

// TestStampedLock_Unlock verifies the mode-agnostic release.
func TestStampedLock_Unlock(t *testing.T) {
	sl := New()
	sl.Unlock(sl.WriteLock())
	if sl.IsWriteLocked() {
		t.Error("Unlock(write) left the lock write-held")
	}
	r := sl.ReadLock()
	sl.Unlock(r)
	if sl.IsReadLocked() {
		t.Error("Unlock(read) left a read hold")
	}
	if sl.TryUnlockWrite() || sl.TryUnlockRead() {
		t.Error("unstamped releases succeeded on an unlocked lock")
	}
	sl.WriteLock()
	if !sl.TryUnlockWrite() {
		t.Error("TryUnlockWrite failed on a write-held lock")
	}
	sl.ReadLock()
	if !sl.TryUnlockRead() {
		t.Error("TryUnlockRead failed on a read-held lock")
	}
}

// TestStampedLock_Classifiers checks the stamp classification helpers.
func TestStampedLock_Classifiers(t *testing.T) {
	sl := New()
	opt := sl.TryOptimisticRead()
	r := sl.ReadLock()
	sl.UnlockRead(r)
	w := sl.WriteLock()
	sl.UnlockWrite(w)

	tests := []struct {
		name                          string
		stamp                         Stamp
		write, read, lock, optimistic bool
	}{
		{"zero", 0, false, false, false, false},
		{"optimistic", opt, false, false, false, true},
		{"read", r, false, true, true, false},
		{"write", w, true, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsWriteLockStamp(tt.stamp); got != tt.write {
				t.Errorf("IsWriteLockStamp = %v, want %v", got, tt.write)
			}
			if got := IsReadLockStamp(tt.stamp); got != tt.read {
				t.Errorf("IsReadLockStamp = %v, want %v", got, tt.read)
			}
			if got := IsLockStamp(tt.stamp); got != tt.lock {
				t.Errorf("IsLockStamp = %v, want %v", got, tt.lock)
			}
			if got := IsOptimisticReadStamp(tt.stamp); got != tt.optimistic {
				t.Errorf("IsOptimisticReadStamp = %v, want %v", got, tt.optimistic)
			}
		})
	}
}

// TestStampedLock_Timeouts verifies timed acquisitions give up cleanly.
func TestStampedLock_Timeouts(t *testing.T) {
	sl := New()
	w := sl.WriteLock()

	start := time.Now()
	st, err := sl.TryReadLockTimeout(context.Background(), 20*time.Millisecond)
	if st != 0 || err != nil {
		t.Fatalf("TryReadLockTimeout = (%#x, %v), want (0, nil)", uint64(st), err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("gave up after %v", elapsed)
	}
	st, err = sl.TryWriteLockTimeout(context.Background(), 20*time.Millisecond)
	if st != 0 || err != nil {
		t.Fatalf("TryWriteLockTimeout = (%#x, %v), want (0, nil)", uint64(st), err)
	}
	if st, err := sl.TryWriteLockTimeout(context.Background(), 0); st != 0 || err != nil {
		t.Errorf("zero timeout = (%#x, %v)", uint64(st), err)
	}
	sl.UnlockWrite(w)

	// Cancelled nodes must not block later acquirers.
	st, err = sl.TryWriteLockTimeout(context.Background(), time.Second)
	if st == 0 || err != nil {
		t.Fatalf("TryWriteLockTimeout on a free lock = (%#x, %v)", uint64(st), err)
	}
	sl.UnlockWrite(st)
	r, err := sl.TryReadLockTimeout(context.Background(), time.Second)
	if r == 0 || err != nil {
		t.Fatalf("TryReadLockTimeout on a free lock = (%#x, %v)", uint64(r), err)
	}
	sl.UnlockRead(r)
}

// TestStampedLock_Cancellation verifies blocked acquisitions return when
// their context ends.
func TestStampedLock_Cancellation(t *testing.T) {
	tests := []struct {
		name    string
		acquire func(sl *StampedLock, ctx context.Context) (Stamp, error)
	}{
		{"write", func(sl *StampedLock, ctx context.Context) (Stamp, error) {
			return sl.WriteLockInterruptibly(ctx)
		}},
		{"read", func(sl *StampedLock, ctx context.Context) (Stamp, error) {
			return sl.ReadLockInterruptibly(ctx)
		}},
		{"timed write", func(sl *StampedLock, ctx context.Context) (Stamp, error) {
			return sl.TryWriteLockTimeout(ctx, time.Hour)
		}},
		{"timed read", func(sl *StampedLock, ctx context.Context) (Stamp, error) {
			return sl.TryReadLockTimeout(ctx, time.Hour)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl := New()
			w := sl.WriteLock()

			ctx, cancel := context.WithCancel(context.Background())
			type result struct {
				st  Stamp
				err error
			}
			done := make(chan result, 1)
			go func() {
				st, err := tt.acquire(sl, ctx)
				done <- result{st, err}
			}()
			waitFor(t, "waiter to enqueue", func() bool { return sl.wtail.Load() != sl.whead.Load() })
			cancel()

			var res result
			select {
			case res = <-done:
			case <-time.After(10 * time.Second):
				t.Fatal("cancelled acquisition did not return")
			}
			if res.st != 0 {
				t.Errorf("stamp = %#x, want 0", uint64(res.st))
			}
			if !errors.Is(res.err, aqs.ErrInterrupted) || !errors.Is(res.err, context.Canceled) {
				t.Errorf("err = %v, want ErrInterrupted and context.Canceled", res.err)
			}

			sl.UnlockWrite(w)
			w2 := sl.WriteLock()
			sl.UnlockWrite(w2)
			if got := sl.String(); got != "StampedLock[Unlocked]" {
				t.Errorf("String() = %q", got)
			}
		})
	}
}

// TestStampedLock_CancelledBeforeCall verifies a done context fails fast
// even when the lock is free.
func TestStampedLock_CancelledBeforeCall(t *testing.T) {
	sl := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if st, err := sl.WriteLockInterruptibly(ctx); st != 0 || !errors.Is(err, aqs.ErrInterrupted) {
		t.Errorf("WriteLockInterruptibly = (%#x, %v)", uint64(st), err)
	}
	if st, err := sl.ReadLockInterruptibly(ctx); st != 0 || !errors.Is(err, aqs.ErrInterrupted) {
		t.Errorf("ReadLockInterruptibly = (%#x, %v)", uint64(st), err)
	}
	if sl.IsWriteLocked() || sl.IsReadLocked() {
		t.Error("a failed call left a hold")
	}
}

// TestStampedLock_ReaderQueuesBehindWriter verifies new readers do not
// barge past a queued writer while the lock is read-held.
func TestStampedLock_ReaderQueuesBehindWriter(t *testing.T) {
	sl := New()
	r := sl.ReadLock()

	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w := sl.WriteLock()
		record("writer")
		sl.UnlockWrite(w)
	}()
	waitFor(t, "writer to enqueue", func() bool { return queuedWriter(sl) })

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		st := sl.ReadLock()
		record("reader")
		sl.UnlockRead(st)
	}()

	select {
	case <-readerDone:
		t.Fatal("reader acquired past a queued writer")
	case <-time.After(50 * time.Millisecond):
	}

	sl.UnlockRead(r)
	waitDone(t, "writer", writerDone)
	waitDone(t, "reader", readerDone)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "writer" {
		t.Errorf("acquisition order = %v, want [writer reader]", order)
	}
}

// TestStampedLock_ReaderGroupReleasedTogether verifies readers queued
// behind one writer all proceed once it releases.
func TestStampedLock_ReaderGroupReleasedTogether(t *testing.T) {
	sl := New()
	w := sl.WriteLock()

	const readers = 10
	var holding atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := sl.ReadLock()
			holding.Add(1)
			<-release
			sl.UnlockRead(st)
		}()
	}
	waitFor(t, "readers to queue", func() bool { return sl.wtail.Load() != sl.whead.Load() })
	time.Sleep(20 * time.Millisecond)

	sl.UnlockWrite(w)
	waitFor(t, "all readers to hold together", func() bool { return holding.Load() == readers })
	if n := sl.ReadLockCount(); n != readers {
		t.Errorf("ReadLockCount() = %d, want %d", n, readers)
	}
	close(release)
	wg.Wait()
}

// TestStampedLock_OptimisticConsistency verifies a validated optimistic
// read never observes a torn update.
func TestStampedLock_OptimisticConsistency(t *testing.T) {
	sl := New()
	var x, y atomic.Int64

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			w := sl.WriteLock()
			x.Store(i)
			y.Store(-i)
			sl.UnlockWrite(w)
		}
	}()

	var validated, torn int
	for i := 0; i < 20000; i++ {
		st := sl.TryOptimisticRead()
		a, b := x.Load(), y.Load()
		if !sl.Validate(st) {
			continue
		}
		validated++
		if a != -b {
			torn++
		}
	}
	close(stop)
	wg.Wait()

	if torn != 0 {
		t.Errorf("%d of %d validated reads were torn", torn, validated)
	}
}

// TestStampedLock_MixedStress mixes every acquisition mode with timeouts
// and cancellation, then checks the lock is left clean.
func TestStampedLock_MixedStress(t *testing.T) {
	sl := NewWithOptions(Options{Tuning: Tuning{Spins: 4, HeadSpins: 8, MaxHeadSpins: 64}})
	const goroutines = 12
	const iterations = 400

	var writers, readers, violations atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(g), 42))
			for i := 0; i < iterations; i++ {
				var st Stamp
				write := rng.IntN(3) == 0
				switch rng.IntN(4) {
				case 0:
					if write {
						st = sl.WriteLock()
					} else {
						st = sl.ReadLock()
					}
				case 1:
					d := time.Duration(rng.IntN(200)) * time.Microsecond
					if write {
						st, _ = sl.TryWriteLockTimeout(context.Background(), d)
					} else {
						st, _ = sl.TryReadLockTimeout(context.Background(), d)
					}
				case 2:
					ctx, cancel := context.WithTimeout(context.Background(), time.Duration(rng.IntN(300))*time.Microsecond)
					if write {
						st, _ = sl.WriteLockInterruptibly(ctx)
					} else {
						st, _ = sl.ReadLockInterruptibly(ctx)
					}
					cancel()
				default:
					opt := sl.TryOptimisticRead()
					if opt != 0 && write {
						st = sl.TryConvertToWriteLock(opt)
					}
					if st == 0 {
						continue
					}
				}
				if st == 0 {
					continue
				}
				if IsWriteLockStamp(st) {
					if writers.Add(1) != 1 || readers.Load() != 0 {
						violations.Add(1)
					}
					writers.Add(-1)
				} else {
					readers.Add(1)
					if writers.Load() != 0 {
						violations.Add(1)
					}
					readers.Add(-1)
				}
				sl.Unlock(st)
			}
		}(g)
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Errorf("%d exclusion violations", v)
	}
	if got := sl.String(); got != "StampedLock[Unlocked]" {
		t.Errorf("String() after stress = %q", got)
	}
	w := sl.TryWriteLock()
	if w == 0 {
		t.Fatal("lock unusable after stress")
	}
	sl.UnlockWrite(w)
}

// TestStampedLock_Views verifies the sync.Locker views.
func TestStampedLock_Views(t *testing.T) {
	sl := New()
	rl, wl := sl.AsReadLocker(), sl.AsWriteLocker()

	rl.Lock()
	rl.Lock()
	if n := sl.ReadLockCount(); n != 2 {
		t.Errorf("ReadLockCount() = %d, want 2", n)
	}
	rl.Unlock()
	rl.Unlock()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				wl.Lock()
				counter++
				wl.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 2000 {
		t.Errorf("counter = %d, want 2000", counter)
	}
}
