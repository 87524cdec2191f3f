package classify

import (
	"context"
	"errors"

	"github.com/aponysus/procedure/task"
)

// Built-in classifier registry names.
const (
	ClassifierAlwaysRetryOnError = "always"
	ClassifierHTTP               = "http"
	ClassifierNetwork            = "network"
	ClassifierAuto               = "auto"
)

// RegisterBuiltins registers core classifiers into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ClassifierAlwaysRetryOnError, AlwaysRetryOnError{})
	reg.Register(ClassifierHTTP, HTTPClassifier{})
	reg.Register(ClassifierNetwork, NetworkClassifier{})
	reg.Register(ClassifierAuto, AutoClassifier{})
}

// AlwaysRetryOnError classifies nil errors as success and all other errors as retryable,
// except for cancellation which aborts immediately.
type AlwaysRetryOnError struct{}

func (AlwaysRetryOnError) Classify(_ any, err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}
	if errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeAbort, Reason: "context_canceled"}
	}
	if errors.Is(err, task.ErrCancelled) {
		return Outcome{Kind: OutcomeAbort, Reason: "task_cancelled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeRetryable, Reason: "context_deadline_exceeded"}
	}
	if errors.Is(err, task.ErrTimedOut) {
		return Outcome{Kind: OutcomeRetryable, Reason: "task_timed_out"}
	}
	return Outcome{Kind: OutcomeRetryable, Reason: "retryable_error"}
}
