package aqs

import (
	"sync/atomic"

	"github.com/kolkov/queuedsync/internal/park"
)

// Node status values. Non-negative values other than 0 mean the node needs
// no signalling; negative values mean someone must act on it.
const (
	// statusCancelled marks a node whose waiter gave up. Terminal.
	statusCancelled int32 = 1

	// statusSignal means the successor is (or will soon be) parked, so the
	// holder of this node must unpark it on release.
	statusSignal int32 = -1

	// statusCondition means the node sits on a condition queue.
	statusCondition int32 = -2

	// statusPropagate is written on the head by a shared release that found
	// nobody to signal, so the next shared acquirer keeps propagating.
	statusPropagate int32 = -3
)

// Mode tells whether a node waits for exclusive or shared acquisition.
type Mode uint8

const (
	// Exclusive nodes wake only their successor.
	Exclusive Mode = iota
	// Shared nodes propagate the wakeup to following shared nodes.
	Shared
)

// String returns the string representation of a Mode.
func (m Mode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Shared:
		return "shared"
	default:
		return "unknown"
	}
}

// node is a wait queue entry.
//
// Lifecycle: (fresh) -> SIGNAL -> {CANCELLED | 0 (became head)}.
// Condition nodes: CONDITION -> 0 (transferred) -> SIGNAL in the sync queue.
//
// Layout:
//   - status: one of the status constants above, or 0
//   - prev: set before the node is published as tail; authoritative
//   - next: best-effort forward link, may lag behind enqueue
//   - thread: the waiter's parker; nil once the node is served or cancelled
//   - parker: the parker owned by the blocking call (immutable)
//   - mode: exclusive or shared (immutable)
//   - nextWaiter: condition queue link, guarded by the exclusive hold
//   - gid: goroutine id of the waiter, for introspection only
type node struct {
	status atomic.Int32
	prev   atomic.Pointer[node]
	next   atomic.Pointer[node]
	thread atomic.Pointer[park.Parker]

	parker     *park.Parker
	mode       Mode
	nextWaiter *node
	gid        int64
}

// redirect is the next link of a cancelled node. It is a tag, not a
// successor: its status is CANCELLED, so any walker that reaches it falls
// back to the backward scan from tail exactly as for a cancelled successor.
var redirect = func() *node {
	n := &node{}
	n.status.Store(statusCancelled)
	return n
}()

func newNode(mode Mode, gid int64, k park.Kind) *node {
	n := &node{parker: park.NewKind(k), mode: mode, gid: gid}
	n.thread.Store(n.parker)
	return n
}

// isShared reports whether the node waits in shared mode.
func (n *node) isShared() bool {
	return n.mode == Shared
}
