package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/procedure/task"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func opErr(op string, errno syscall.Errno) error {
	return &net.OpError{Op: op, Net: "tcp", Err: os.NewSyscallError(op, errno)}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeNone},
		{"plain", errors.New("boom"), CodeUnknown},
		{"explicit_code", &NetworkError{Code: CodeDataNotAllowed}, CodeDataNotAllowed},
		{"explicit_code_wins_over_timeout", &NetworkError{Code: CodeCallIsActive, Err: context.DeadlineExceeded}, CodeCallIsActive},
		{"task_timeout", &task.TimeoutError{After: time.Second}, CodeTimedOut},
		{"deadline", fmt.Errorf("wrap: %w", context.DeadlineExceeded), CodeTimedOut},
		{"net_timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, CodeTimedOut},
		{"reset", opErr("read", syscall.ECONNRESET), CodeNetworkConnectionLost},
		{"aborted", opErr("read", syscall.ECONNABORTED), CodeNetworkConnectionLost},
		{"broken_pipe", opErr("write", syscall.EPIPE), CodeNetworkConnectionLost},
		{"unexpected_eof", io.ErrUnexpectedEOF, CodeNetworkConnectionLost},
		{"eof", &url.Error{Op: "Get", URL: "http://x", Err: io.EOF}, CodeNetworkConnectionLost},
		{"net_unreachable", opErr("dial", syscall.ENETUNREACH), CodeNotConnectedToInternet},
		{"net_down", opErr("dial", syscall.ENETDOWN), CodeNotConnectedToInternet},
		{"host_unreachable", opErr("dial", syscall.EHOSTUNREACH), CodeNotConnectedToInternet},
		{"refused", opErr("dial", syscall.ECONNREFUSED), CodeCannotConnectToHost},
		{"dns", &net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}, CodeCannotFindHost},
		{"canceled", context.Canceled, CodeCancelled},
		{"task_cancelled", &task.CancelledError{}, CodeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestCode_String(t *testing.T) {
	assert.Equal(t, "network_connection_lost", CodeNetworkConnectionLost.String())
	assert.Equal(t, "code(-42)", Code(-42).String())

	assert.True(t, IsNetworkCode(CodeTimedOut))
	assert.False(t, IsNetworkCode(CodeUnknown))
	assert.False(t, IsNetworkCode(CodeCancelled))
	assert.False(t, IsNetworkCode(Code(-42)))
}

func TestNetworkError(t *testing.T) {
	cause := opErr("read", syscall.ECONNRESET)
	ne := NewNetworkError(cause)
	require.NotNil(t, ne)
	assert.Equal(t, CodeNetworkConnectionLost, ne.Code)
	assert.ErrorIs(t, ne, syscall.ECONNRESET)
	assert.True(t, ne.Temporary())
	assert.False(t, ne.Timeout())
	assert.Contains(t, ne.Error(), "network_connection_lost (-1005)")

	assert.Same(t, ne, NewNetworkError(fmt.Errorf("again: %w", ne)))
	assert.Nil(t, NewNetworkError(nil))

	timedOut := &NetworkError{Code: CodeTimedOut}
	assert.ErrorIs(t, timedOut, task.ErrTimedOut)
	assert.NotErrorIs(t, timedOut, task.ErrCancelled)
	assert.ErrorIs(t, &NetworkError{Code: CodeCancelled}, task.ErrCancelled)
	assert.Equal(t, "procedure: network error timed_out (-1001)", timedOut.Error())
}

func TestNetworkClassifier(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   OutcomeKind
		reason string
	}{
		{"success", nil, OutcomeSuccess, "success"},
		{"reachability", opErr("dial", syscall.ENETUNREACH), OutcomeAwaitConnectivity, "network_await_reachability"},
		{"roaming", &NetworkError{Code: CodeInternationalRoamingOff}, OutcomeAwaitConnectivity, "network_await_reachability"},
		{"timeout", &task.TimeoutError{After: time.Second}, OutcomeRetryable, "network_timeout"},
		{"transient", io.ErrUnexpectedEOF, OutcomeRetryable, "network_transient"},
		{"cancelled", context.Canceled, OutcomeAbort, "network_cancelled"},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, OutcomeNonRetryable, "network_non_retryable"},
		{"unknown", errors.New("boom"), OutcomeNonRetryable, "network_non_retryable"},
		{"http_status", testHTTPError{status: 503, method: "GET"}, OutcomeRetryable, "http_5xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NetworkClassifier{}.Classify(nil, tt.err)
			assert.Equal(t, tt.kind, out.Kind)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestNetworkClassifier_TransientHasNoDelay(t *testing.T) {
	out := NetworkClassifier{}.Classify(nil, opErr("read", syscall.ECONNRESET))
	assert.Equal(t, "none", out.Attributes["retry_delay"])
	assert.Equal(t, "-1005", out.Attributes["network_code"])
	assert.Equal(t, "network_connection_lost", out.Attributes["network_name"])
}

// An error can match several predicates; reachability must win.
type multiPredicateErr struct{}

func (multiPredicateErr) Error() string     { return "multi" }
func (multiPredicateErr) NetworkCode() Code { return CodeNotConnectedToInternet }
func (multiPredicateErr) Timeout() bool     { return true }

func TestNetworkClassifier_Precedence(t *testing.T) {
	out := NetworkClassifier{}.Classify(nil, multiPredicateErr{})
	assert.Equal(t, OutcomeAwaitConnectivity, out.Kind)
}

func TestNetworkClassifier_ClassifyResponse(t *testing.T) {
	c := NetworkClassifier{}
	assert.Equal(t, OutcomeSuccess, c.ClassifyResponse(NewClassifiedResponse(nil, nil)).Kind)

	out := c.ClassifyResponse(NewClassifiedResponse(nil, opErr("read", syscall.EPIPE)))
	assert.Equal(t, "network_transient", out.Reason)
}
