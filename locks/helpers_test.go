package locks

import (
	"errors"
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

// panicValue runs fn and returns what it panicked with, or nil.
func panicValue(fn func()) (v any) {
	defer func() { v = recover() }()
	fn()
	return nil
}

func expectPanicIs(t *testing.T, what string, target error, fn func()) {
	t.Helper()
	v := panicValue(fn)
	if v == nil {
		t.Fatalf("%s: expected panic", what)
	}
	err, ok := v.(error)
	if !ok {
		t.Fatalf("%s: panic value %v is not an error", what, v)
	}
	if !errors.Is(err, target) {
		t.Errorf("%s: panic %v, want %v", what, err, target)
	}
}

func expectMonitorPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	expectPanicIs(t, what, aqs.ErrIllegalMonitorState, fn)
}
