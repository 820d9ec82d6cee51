package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when no handle is available. Callers must treat
	// it as a rejected operation; it is never a reason to block or queue.
	ErrNotReady = errors.New("resource not ready")

	// ErrClosed is returned once the controller has been torn down.
	ErrClosed = errors.New("controller torn down")
)

// NotReadyError describes why the current handle could not be borrowed.
//
// It matches ErrNotReady with errors.Is, and additionally ErrClosed when the
// controller is destroyed. The construction error (if any) is available via
// errors.Unwrap.
type NotReadyError struct {
	Epoch Epoch
	State State
	cause error
}

func (e *NotReadyError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("resource not ready (epoch %d, %s): %v", e.Epoch, e.State, e.cause)
	}
	return fmt.Sprintf("resource not ready (epoch %d, %s)", e.Epoch, e.State)
}

func (e *NotReadyError) Unwrap() error { return e.cause }

// Is matches ErrNotReady, and ErrClosed for a destroyed controller.
func (e *NotReadyError) Is(target error) bool {
	switch target {
	case ErrNotReady:
		return true
	case ErrClosed:
		return e.State == StateDestroyed
	default:
		return false
	}
}

// PanicError wraps a panic raised by a build or destroy function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
