package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"

	"github.com/aponysus/procedure/task"
)

// Code is a transport error code. Values mirror the URL loading system codes
// so classifications line up with client telemetry that reports them.
type Code int

const (
	CodeNone                    Code = 0
	CodeUnknown                 Code = -1
	CodeCancelled               Code = -999
	CodeTimedOut                Code = -1001
	CodeCannotFindHost          Code = -1003
	CodeCannotConnectToHost     Code = -1004
	CodeNetworkConnectionLost   Code = -1005
	CodeNotConnectedToInternet  Code = -1009
	CodeInternationalRoamingOff Code = -1018
	CodeCallIsActive            Code = -1019
	CodeDataNotAllowed          Code = -1020
)

var codeNames = map[Code]string{
	CodeNone:                    "none",
	CodeUnknown:                 "unknown",
	CodeCancelled:               "cancelled",
	CodeTimedOut:                "timed_out",
	CodeCannotFindHost:          "cannot_find_host",
	CodeCannotConnectToHost:     "cannot_connect_to_host",
	CodeNetworkConnectionLost:   "network_connection_lost",
	CodeNotConnectedToInternet:  "not_connected_to_internet",
	CodeInternationalRoamingOff: "international_roaming_off",
	CodeCallIsActive:            "call_is_active",
	CodeDataNotAllowed:          "data_not_allowed",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "code(" + strconv.Itoa(int(c)) + ")"
}

// IsNetworkCode reports whether c names a concrete transport condition, as
// opposed to no error, an unrecognised error or a cancellation.
func IsNetworkCode(c Code) bool {
	switch c {
	case CodeNone, CodeUnknown, CodeCancelled:
		return false
	default:
		_, ok := codeNames[c]
		return ok
	}
}

// NetworkCoder is implemented by errors that know their transport code.
// CodeOf prefers it over every other inspection.
type NetworkCoder interface {
	NetworkCode() Code
}

// NetworkError is the structured transport error: a code plus the error it
// was derived from.
type NetworkError struct {
	Code Code
	Err  error
}

// NewNetworkError wraps err with the code CodeOf derives for it.
func NewNetworkError(err error) *NetworkError {
	if err == nil {
		return nil
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne
	}
	return &NetworkError{Code: CodeOf(err), Err: err}
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("procedure: network error %s (%d)", e.Code, int(e.Code))
	}
	return fmt.Sprintf("procedure: network error %s (%d): %v", e.Code, int(e.Code), e.Err)
}

func (e *NetworkError) Unwrap() error     { return e.Err }
func (e *NetworkError) NetworkCode() Code { return e.Code }
func (e *NetworkError) Timeout() bool     { return e.Code == CodeTimedOut }
func (e *NetworkError) Temporary() bool   { return e.Code == CodeNetworkConnectionLost }

func (e *NetworkError) Is(target error) bool {
	switch target {
	case task.ErrTimedOut:
		return e.Code == CodeTimedOut
	case task.ErrCancelled:
		return e.Code == CodeCancelled
	default:
		return false
	}
}

// CodeOf derives the transport code of err. nil yields CodeNone; errors that
// match nothing yield CodeUnknown.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}

	var coder NetworkCoder
	if errors.As(err, &coder) {
		return coder.NetworkCode()
	}

	if errors.Is(err, task.ErrTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		return CodeTimedOut
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return CodeTimedOut
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return CodeNetworkConnectionLost
	case errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ENETDOWN),
		errors.Is(err, syscall.EHOSTUNREACH):
		return CodeNotConnectedToInternet
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeCannotConnectToHost
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CodeCannotFindHost
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, task.ErrCancelled) {
		return CodeCancelled
	}
	return CodeUnknown
}
