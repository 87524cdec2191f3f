package task

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCancelled marks a task that was cancelled before it produced a result.
	ErrCancelled = errors.New("procedure: task cancelled")

	// ErrTimedOut marks a task that exceeded its allotted time.
	ErrTimedOut = errors.New("procedure: task timed out")

	// ErrDependencyFinished matches *DependencyError values of kind DependencyFinished.
	ErrDependencyFinished = errors.New("procedure: dependency finished with error")

	// ErrDependencyCancelled matches *DependencyError values of kind DependencyCancelled.
	ErrDependencyCancelled = errors.New("procedure: dependency cancelled")

	// ErrNoExecutor is returned when a confined task has nowhere to run.
	ErrNoExecutor = errors.New("procedure: no executor")

	// ErrExecutorFull is returned by TrySubmit when an executor has no room.
	ErrExecutorFull = errors.New("procedure: executor full")
)

// DependencyKind says which terminal event of a child task was forwarded.
type DependencyKind int

const (
	DependencyFinished DependencyKind = iota + 1
	DependencyCancelled
)

func (k DependencyKind) String() string {
	switch k {
	case DependencyFinished:
		return "finished"
	case DependencyCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DependencyError records a child task's failure or cancellation as the
// parent's own failure. Err may be nil for a child cancelled without a reason.
type DependencyError struct {
	Kind DependencyKind
	Err  error
}

func (e *DependencyError) Error() string {
	var base error = ErrDependencyFinished
	if e.Kind == DependencyCancelled {
		base = ErrDependencyCancelled
	}
	if e.Err == nil {
		return base.Error()
	}
	return fmt.Sprintf("%s: %v", base, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool {
	switch target {
	case ErrDependencyFinished:
		return e.Kind == DependencyFinished
	case ErrDependencyCancelled:
		return e.Kind == DependencyCancelled
	default:
		return false
	}
}

// CancelledError is the outcome recorded for a task that was cancelled and
// never executed. Reason is the error passed to Cancel, if any.
type CancelledError struct {
	Reason error
}

func (e *CancelledError) Error() string {
	if e.Reason == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled, e.Reason)
}

func (e *CancelledError) Unwrap() error { return e.Reason }

func (e *CancelledError) Is(target error) bool { return target == ErrCancelled }

// TimeoutError is the structured timed-out classification.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s after %s", ErrTimedOut, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimedOut }

// Timeout reports true so TimeoutError satisfies net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// PanicError is recorded when a block panics.
type PanicError struct {
	Task  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("procedure: panic in task %s: %v", e.Task, e.Value)
}
