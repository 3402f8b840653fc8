// Package spin holds the tuning parameters for bounded spinning in the
// queued synchronizers, plus the cheap pseudo-random source that decides when
// a spin iteration counts.
//
// The spin constants were tuned empirically for one runtime and hardware
// generation. They are configuration, not invariants: correctness never
// depends on them, only latency and CPU burn do.
package spin

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Tuning configures bounded spinning before parking.
//
// Usage:
//
//	// Defaults derived from runtime.NumCPU()
//	t := spin.DefaultTuning()
//
//	// Never spin (useful on oversubscribed machines)
//	t := spin.Tuning{Disabled: true}.Normalize()
type Tuning struct {
	// Spins is the number of spins before enqueueing when the queue looks
	// trivial (StampedLock SPINS). Default: 64 on multiprocessors, 0 otherwise.
	Spins int

	// HeadSpins is the initial number of spins at the queue head before
	// blocking. Default: 1024 on multiprocessors, 0 otherwise.
	HeadSpins int

	// MaxHeadSpins caps the doubling of HeadSpins across rewakes.
	// Default: 65536 on multiprocessors, 0 otherwise.
	MaxHeadSpins int

	// SpinForTimeoutThreshold is the remaining time below which a timed
	// wait spins instead of parking, because a timed park costs more than
	// it saves. Default: 1µs.
	SpinForTimeoutThreshold time.Duration

	// OverflowYieldRate is a mask (2^k - 1) selecting how often a goroutine
	// that loses the reader-overflow spinlock yields. Default: 7.
	OverflowYieldRate uint32

	// Disabled turns off all spinning regardless of the counts above.
	Disabled bool
}

// DefaultTuning returns the tuning used when none is configured.
func DefaultTuning() Tuning {
	t := Tuning{
		SpinForTimeoutThreshold: time.Microsecond,
		OverflowYieldRate:       7,
	}
	if runtime.NumCPU() > 1 {
		t.Spins = 1 << 6
		t.HeadSpins = 1 << 10
		t.MaxHeadSpins = 1 << 16
	}
	return t
}

// Normalize fills unset fields from DefaultTuning and clamps the rest.
//
// A zero Tuning normalizes to DefaultTuning(). Negative counts are treated
// as zero, MaxHeadSpins is raised to HeadSpins, and OverflowYieldRate is
// rounded up to the next 2^k - 1 mask.
func (t Tuning) Normalize() Tuning {
	if t == (Tuning{}) {
		return DefaultTuning()
	}
	if t.Disabled {
		t.Spins, t.HeadSpins, t.MaxHeadSpins = 0, 0, 0
	}
	t.Spins = max(t.Spins, 0)
	t.HeadSpins = max(t.HeadSpins, 0)
	t.MaxHeadSpins = max(t.MaxHeadSpins, t.HeadSpins)
	if t.SpinForTimeoutThreshold <= 0 {
		t.SpinForTimeoutThreshold = time.Microsecond
	}
	if t.OverflowYieldRate == 0 {
		t.OverflowYieldRate = 7
	}
	m := uint32(1)
	for m < t.OverflowYieldRate {
		m = m<<1 | 1
	}
	t.OverflowYieldRate = m
	return t
}

// seedGen hands out distinct starting points for Seeds. Like a trace
// position counter, the interleaving of concurrent callers supplies the
// randomness, so no RNG state is shared on the hot path.
var seedGen atomic.Uint32

const golden = 0x9e3779b9

// Seed is a per-call xorshift generator.
//
// Spin loops decrement their budget only when Next() is non-negative,
// which makes the effective spin length random and breaks lockstep between
// competing goroutines.
//
// Thread Safety: NOT safe for concurrent use. Each spin loop owns its Seed.
type Seed struct {
	x uint32
}

// NewSeed returns a freshly seeded generator. It never returns a zero state.
func NewSeed() Seed {
	x := mix(seedGen.Add(golden))
	if x == 0 {
		x = golden
	}
	return Seed{x: x}
}

// Next advances the generator and returns the new value as a signed int.
func (s *Seed) Next() int32 {
	if s.x == 0 {
		*s = NewSeed()
	}
	x := s.x
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.x = x
	return int32(x) //nolint:gosec // G115: sign bit is the coin flip
}

// Probe returns a one-shot pseudo-random value for callers that have no
// loop-local Seed, such as the reader-overflow spinlock.
func Probe() uint32 {
	return mix(seedGen.Add(golden))
}

// Yield gives up the processor, allowing other goroutines to run.
func Yield() {
	runtime.Gosched()
}

func mix(h uint32) uint32 {
	h ^= h >> 16
	h *= 0x85ebca6b
	h ^= h >> 13
	h *= 0xc2b2ae35
	h ^= h >> 16
	return h
}
