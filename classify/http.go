package classify

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/aponysus/procedure/task"
)

// HTTPError is a classify-owned interface that allows HTTP classifiers to
// recognize retry semantics without importing integration packages.
//
// Implementations should use status code 0 for transport errors.
type HTTPError interface {
	HTTPStatusCode() int
	HTTPMethod() string
	RetryAfter() (time.Duration, bool)
}

// HTTPClassifier classifies outcomes for HTTP-like operations based on an HTTPError.
//
// If the error chain holds no HTTPError, it returns a non-retryable outcome
// with reason "classifier_type_mismatch".
type HTTPClassifier struct {
	// Retryable4xx is an optional set of additional retryable 4xx status codes.
	// 408 and 429 are always retryable.
	Retryable4xx map[int]struct{}
}

func (c HTTPClassifier) Classify(_ any, err error) Outcome {
	if err == nil {
		return Outcome{Kind: OutcomeSuccess, Reason: "success"}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, task.ErrCancelled) {
		return Outcome{Kind: OutcomeAbort, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, task.ErrTimedOut) {
		return Outcome{Kind: OutcomeRetryable, Reason: "context_deadline_exceeded"}
	}

	var he HTTPError
	if !errors.As(err, &he) {
		return Outcome{
			Kind:   OutcomeNonRetryable,
			Reason: "classifier_type_mismatch",
			Attributes: map[string]string{
				"expected_type": "classify.HTTPError",
				"got_type":      typeString(err),
			},
		}
	}

	status := StatusCode(he.HTTPStatusCode())
	method := strings.ToUpper(strings.TrimSpace(he.HTTPMethod()))
	idempotent := isIdempotentMethod(method)

	out := Outcome{
		Kind:   OutcomeNonRetryable,
		Reason: "http_non_retryable_status",
		Attributes: map[string]string{
			"status": strconv.Itoa(int(status)),
			"method": method,
		},
	}
	if reason := status.Reason(); reason != "" {
		out.Attributes["status_text"] = reason
	}

	retryable := func(reason string) Outcome {
		if idempotent {
			out.Kind = OutcomeRetryable
			out.Reason = reason
		} else {
			out.Kind = OutcomeNonRetryable
			out.Reason = "http_non_idempotent"
		}
		return out
	}

	switch {
	case status.IsSuccess():
		out.Kind = OutcomeSuccess
		out.Reason = "success"
		return out
	case status == 0:
		return retryable("http_transport_error")
	case status.IsServerError():
		return retryable("http_5xx")
	case status == StatusRequestTimeout || status == StatusTooManyRequests || c.retryable4xx(int(status)):
		out = retryable("http_" + strconv.Itoa(int(status)))
		if out.Kind == OutcomeRetryable {
			if d, ok := he.RetryAfter(); ok && d > 0 {
				out.BackoffOverride = d
				out.Attributes["retry_after"] = d.String()
			}
		}
		return out
	}

	// All other statuses are treated as terminal.
	return out
}

func (c HTTPClassifier) retryable4xx(status int) bool {
	if c.Retryable4xx == nil {
		return false
	}
	_, ok := c.Retryable4xx[status]
	return ok
}

func isIdempotentMethod(method string) bool {
	switch method {
	case "GET", "HEAD", "PUT", "DELETE", "OPTIONS", "TRACE":
		return true
	default:
		return false
	}
}

func typeString(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
