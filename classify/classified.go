package classify

import "net/http"

// ClassifiedError wraps one transport error. Every predicate is derived from
// the wrapped error on each call.
type ClassifiedError struct {
	err error
}

// NewClassifiedError returns nil for a nil err.
func NewClassifiedError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	return &ClassifiedError{err: err}
}

func (e *ClassifiedError) Error() string { return e.err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.err }

// Code is CodeOf the wrapped error.
func (e *ClassifiedError) Code() Code {
	if e == nil {
		return CodeNone
	}
	return CodeOf(e.err)
}

// IsTransient reports a dropped connection: safe to retry without delay.
func (e *ClassifiedError) IsTransient() bool {
	return e.Code() == CodeNetworkConnectionLost
}

// IsTimeout reports a timed-out request: retry with backoff.
func (e *ClassifiedError) IsTimeout() bool {
	return e.Code() == CodeTimedOut
}

// WaitForReachabilityChange reports that retrying is pointless until the
// device's connectivity changes.
func (e *ClassifiedError) WaitForReachabilityChange() bool {
	switch e.Code() {
	case CodeNotConnectedToInternet,
		CodeInternationalRoamingOff,
		CodeCallIsActive,
		CodeDataNotAllowed:
		return true
	default:
		return false
	}
}

// ClassifiedResponse is the immutable result of one transport callback: the
// response metadata, if any, and the classified error, if any.
type ClassifiedResponse struct {
	response *http.Response
	err      *ClassifiedError
}

func NewClassifiedResponse(resp *http.Response, err error) ClassifiedResponse {
	return ClassifiedResponse{response: resp, err: NewClassifiedError(err)}
}

func (r ClassifiedResponse) Response() *http.Response { return r.response }

// Err returns the classified error, or nil when the transport reported none.
func (r ClassifiedResponse) Err() *ClassifiedError { return r.err }

// HTTPStatusCode looks up the response status. It reports false when there is
// no response or the status is not in the table.
func (r ClassifiedResponse) HTTPStatusCode() (StatusCode, bool) {
	if r.response == nil {
		return 0, false
	}
	sc, err := ParseStatusCode(r.response.StatusCode)
	if err != nil {
		return 0, false
	}
	return sc, true
}
