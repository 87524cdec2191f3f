package classify

import "time"

// OutcomeKind describes what a retry policy should do with a finished task.
type OutcomeKind int

const (
	OutcomeUnknown OutcomeKind = iota
	OutcomeSuccess
	OutcomeRetryable
	OutcomeNonRetryable
	OutcomeAbort

	// OutcomeAwaitConnectivity asks the policy to hold off until a
	// reachability change is observed instead of backing off on a timer.
	OutcomeAwaitConnectivity
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeNonRetryable:
		return "non_retryable"
	case OutcomeAbort:
		return "abort"
	case OutcomeAwaitConnectivity:
		return "await_connectivity"
	default:
		return "unknown"
	}
}

// Outcome describes the classification of a task result.
type Outcome struct {
	Kind   OutcomeKind
	Reason string

	// BackoffOverride, when set, overrides the policy backoff before the next attempt.
	BackoffOverride time.Duration

	// Attributes carries classifier-specific detail (status, method, network code).
	Attributes map[string]string
}

// Classifier turns a task's value and error into a retry-relevant Outcome.
type Classifier interface {
	Classify(val any, err error) Outcome
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(val any, err error) Outcome

func (f ClassifierFunc) Classify(val any, err error) Outcome { return f(val, err) }
