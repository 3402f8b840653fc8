package aqs

import (
	"testing"
	"time"

	"github.com/petermattis/goid"
)

// mutexPolicy is a non-reentrant exclusive lock recording its owner.
type mutexPolicy struct {
	Unsupported
	fair bool
}

func (p mutexPolicy) TryAcquire(s *Synchronizer, arg int32) bool {
	if p.fair && s.HasQueuedPredecessors() {
		return false
	}
	if s.CompareAndSetState(0, arg) {
		s.SetExclusiveOwner(goid.Get())
		return true
	}
	return false
}

func (mutexPolicy) TryRelease(s *Synchronizer, _ int32) bool {
	if s.ExclusiveOwner() != goid.Get() {
		IllegalState("TryRelease", "not owner")
	}
	s.SetExclusiveOwner(0)
	s.SetState(0)
	return true
}

func (mutexPolicy) IsHeldExclusively(s *Synchronizer) bool {
	return s.State() != 0 && s.ExclusiveOwner() == goid.Get()
}

// permitPolicy is a counting semaphore.
type permitPolicy struct {
	Unsupported
}

func (permitPolicy) TryAcquireShared(s *Synchronizer, arg int32) int32 {
	for {
		avail := s.State()
		remaining := avail - arg
		if remaining < 0 || s.CompareAndSetState(avail, remaining) {
			return remaining
		}
	}
}

func (permitPolicy) TryReleaseShared(s *Synchronizer, arg int32) bool {
	for {
		c := s.State()
		if s.CompareAndSetState(c, c+arg) {
			return true
		}
	}
}

// latchPolicy opens once the state reaches zero.
type latchPolicy struct {
	Unsupported
}

func (latchPolicy) TryAcquireShared(s *Synchronizer, _ int32) int32 {
	if s.State() == 0 {
		return 1
	}
	return -1
}

func (latchPolicy) TryReleaseShared(s *Synchronizer, _ int32) bool {
	for {
		c := s.State()
		if c == 0 {
			return false
		}
		if s.CompareAndSetState(c, c-1) {
			return c == 1
		}
	}
}

// waitFor polls cond until it holds or the test times out.
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

// waitDone waits for ch to close or the test to time out.
func waitDone(t *testing.T, what string, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(20 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
