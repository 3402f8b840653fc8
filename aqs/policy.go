package aqs

// Policy supplies the acquisition rules of a concrete synchronizer.
//
// The Synchronizer owns the mechanism (queueing, parking, cancellation); the
// Policy decides what the state word means. Hooks run on the caller's
// goroutine, must not block, and read or update state only through the
// Synchronizer passed in (State, SetState, CompareAndSetState).
//
// Hook contracts:
//   - TryAcquire: attempt exclusive acquisition; true on success.
//   - TryRelease: release exclusively; true when the synchronizer became
//     fully free, which is the only case that wakes a waiter. Reentrant
//     policies return false until the hold count reaches zero.
//   - TryAcquireShared: negative on failure, 0 on success with no permits
//     left for others, positive on success when later shared acquirers may
//     succeed too.
//   - TryReleaseShared: true when waiting acquirers may now succeed.
//   - IsHeldExclusively: whether the calling goroutine holds the synchronizer
//     exclusively. Only conditions use it.
//
// Embed Unsupported to implement only the hooks a synchronizer needs.
type Policy interface {
	TryAcquire(s *Synchronizer, arg int32) bool
	TryRelease(s *Synchronizer, arg int32) bool
	TryAcquireShared(s *Synchronizer, arg int32) int32
	TryReleaseShared(s *Synchronizer, arg int32) bool
	IsHeldExclusively(s *Synchronizer) bool
}

// Unsupported implements every Policy hook by panicking with ErrUnsupported.
//
// Example:
//
//	type latchPolicy struct{ aqs.Unsupported }
//
//	func (latchPolicy) TryAcquireShared(s *aqs.Synchronizer, _ int32) int32 { ... }
//	func (latchPolicy) TryReleaseShared(s *aqs.Synchronizer, _ int32) bool  { ... }
type Unsupported struct{}

// TryAcquire panics with ErrUnsupported.
func (Unsupported) TryAcquire(*Synchronizer, int32) bool { panic(ErrUnsupported) }

// TryRelease panics with ErrUnsupported.
func (Unsupported) TryRelease(*Synchronizer, int32) bool { panic(ErrUnsupported) }

// TryAcquireShared panics with ErrUnsupported.
func (Unsupported) TryAcquireShared(*Synchronizer, int32) int32 { panic(ErrUnsupported) }

// TryReleaseShared panics with ErrUnsupported.
func (Unsupported) TryReleaseShared(*Synchronizer, int32) bool { panic(ErrUnsupported) }

// IsHeldExclusively panics with ErrUnsupported.
func (Unsupported) IsHeldExclusively(*Synchronizer) bool { panic(ErrUnsupported) }
