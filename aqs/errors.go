package aqs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIllegalMonitorState reports a programming-contract violation: releasing
	// an unheld synchronizer, signalling a condition without holding its lock,
	// or presenting a stamp that does not match the lock state.
	ErrIllegalMonitorState = errors.New("illegal monitor state")

	// ErrInterrupted is wrapped by every error returned because a context was
	// cancelled while a goroutine was blocked.
	ErrInterrupted = errors.New("interrupted")

	// ErrUnsupported is the panic value of the hooks of Unsupported.
	ErrUnsupported = errors.New("operation not supported by policy")
)

// MonitorStateError describes a contract violation at the call site.
//
// Contract violations are not recoverable conditions, so the framework panics
// with a *MonitorStateError instead of returning it. The error unwraps to
// ErrIllegalMonitorState.
//
// Example:
//
//	err := &MonitorStateError{Op: "Signal", Detail: "lock not held by caller"}
//	fmt.Println(err) // Output: Signal: illegal monitor state: lock not held by caller
type MonitorStateError struct {
	Op     string // Operation that detected the violation
	Detail string // Optional description (empty if none)
}

// Error implements the error interface.
//
// Format: op: illegal monitor state[: detail]
func (e *MonitorStateError) Error() string {
	result := fmt.Sprintf("%s: %v", e.Op, ErrIllegalMonitorState)
	if e.Detail != "" {
		result += ": " + e.Detail
	}
	return result
}

// Unwrap returns ErrIllegalMonitorState.
func (e *MonitorStateError) Unwrap() error {
	return ErrIllegalMonitorState
}

// IllegalState panics with a *MonitorStateError for op. Consumers building
// their own policies use it to report releases by non-owners.
func IllegalState(op, detail string) {
	panic(&MonitorStateError{Op: op, Detail: detail})
}

// Interrupted builds the error returned when ctx ends a blocking call. It
// wraps both ErrInterrupted and the context's cause, so callers can test
// either with errors.Is.
func Interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}
