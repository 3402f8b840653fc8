package park

import "time"

// Kind selects how a Parker blocks.
type Kind uint8

const (
	// Channel blocks through the Go scheduler.
	Channel Kind = iota
	// Futex blocks the OS thread in futex(2). See the package doc for its
	// per-waiter thread cost.
	Futex
)

// Mechanism names the default blocking mechanism.
const Mechanism = "channel"

// String returns the mechanism name.
func (k Kind) String() string {
	if k == Futex {
		return "futex"
	}
	return "channel"
}

// Effective returns the kind a Parker created with k actually uses on this
// platform.
func (k Kind) Effective() Kind {
	if k == Futex && futexSupported {
		return Futex
	}
	return Channel
}

// Parker is a single-permit blocking primitive.
//
// Layout:
//   - permit: one-slot channel; a buffered value is an available permit.
//     nil for futex parkers.
//   - key: futex permit word, 1 when a permit is available.
//
// Thread Safety: Park and ParkTimeout must only be called by the goroutine
// that owns the Parker. Unpark is safe from any goroutine.
type Parker struct {
	permit chan struct{}
	key    uint32
}

// New returns a channel Parker with no permit available.
func New() *Parker {
	return &Parker{permit: make(chan struct{}, 1)}
}

// NewKind returns a Parker of kind k.Effective() with no permit available.
func NewKind(k Kind) *Parker {
	if k.Effective() == Futex {
		return &Parker{}
	}
	return New()
}

// Kind reports the mechanism p blocks with.
func (p *Parker) Kind() Kind {
	if p.permit == nil {
		return Futex
	}
	return Channel
}

// Park blocks until a permit is available, then consumes it.
func (p *Parker) Park() {
	if p.permit == nil {
		p.futexPark(-1)
		return
	}
	<-p.permit
}

// ParkTimeout is like Park but gives up after d. It returns immediately
// when d <= 0.
func (p *Parker) ParkTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	if p.permit == nil {
		p.futexPark(int64(d))
		return
	}
	select {
	case <-p.permit:
		return
	default:
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.permit:
	case <-t.C:
	}
}

// Unpark makes the permit available, waking the owner if it is parked.
func (p *Parker) Unpark() {
	if p.permit == nil {
		p.futexUnpark()
		return
	}
	select {
	case p.permit <- struct{}{}:
	default:
	}
}
