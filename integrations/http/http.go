// Package http runs HTTP requests as tasks and turns their results into
// classified network responses.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aponysus/procedure/classify"
	"github.com/aponysus/procedure/logger"
	"github.com/aponysus/procedure/task"
)

const defaultMaxBodyBytes = 10 << 20

// Payload is what a data task delivers: the response body and the response
// it came from. Response.Body is already drained and closed. Truncated is set
// when the body was longer than the configured maximum.
type Payload struct {
	Data      []byte
	Response  *http.Response
	Truncated bool
}

// Option configures a data task.
type Option func(*options)

type options struct {
	taskOpts     []task.Option
	maxBodyBytes int64
	accept       func(status int) bool
}

// WithTaskOptions passes options through to the underlying task.
func WithTaskOptions(opts ...task.Option) Option {
	return func(o *options) {
		o.taskOpts = append(o.taskOpts, opts...)
	}
}

// WithMaxBodyBytes caps how much of a response body is read. Longer bodies
// are truncated and Payload.Truncated is set.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithAcceptStatus decides which statuses finish the task successfully. The
// default accepts 2xx.
func WithAcceptStatus(fn func(status int) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.accept = fn
		}
	}
}

// NewDataTask returns a task that sends req with client when executed.
//
// It finishes with a Payload when the response status is accepted, and with a
// *StatusError otherwise. Transport failures are *StatusError values with
// Code 0 wrapping a *classify.NetworkError. Cancelling the task aborts the
// request in flight.
func NewDataTask(client *http.Client, req *http.Request, opts ...Option) *task.AsyncResultTask[Payload] {
	o := options{
		maxBodyBytes: defaultMaxBodyBytes,
		accept:       func(status int) bool { return status >= 200 && status < 300 },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if client == nil {
		client = http.DefaultClient
	}

	taskOpts := append([]task.Option{task.WithName(requestName(req))}, o.taskOpts...)

	var t *task.AsyncResultTask[Payload]
	t = task.NewAsyncResult(func(ctx context.Context, finish func(task.Result[Payload])) {
		if req == nil {
			finish(task.Failure[Payload](errors.New("procedure: nil http request")))
			return
		}

		ctx, cancel := context.WithCancelCause(ctx)
		reg := t.Subscribe(func(ev task.Event) {
			if ev.Kind == task.EventCancelled {
				cause := ev.Err
				if cause == nil {
					cause = task.ErrCancelled
				}
				cancel(cause)
			}
		})

		go func() {
			defer cancel(nil)
			defer reg.Cancel()
			finish(do(ctx, client, req, o))
		}()
	}, taskOpts...)
	return t
}

func do(ctx context.Context, client *http.Client, req *http.Request, o options) task.Result[Payload] {
	log := logger.FromContext(ctx)

	outReq := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return task.Failure[Payload](fmt.Errorf("procedure: replay request body: %w", err))
		}
		outReq.Body = body
	}

	resp, err := client.Do(outReq)
	if err != nil {
		ne := transportError(ctx, err)
		log.Debug("http transport error", "method", req.Method, "code", ne.Code.String(), "error", err)
		return task.Failure[Payload](&StatusError{Method: req.Method, Err: ne})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, o.maxBodyBytes+1))
	truncated := int64(len(data)) > o.maxBodyBytes
	if truncated {
		data = data[:o.maxBodyBytes]
		log.Debug("http body truncated", "method", req.Method, "max_bytes", o.maxBodyBytes)
	}
	if err != nil {
		return task.Failure[Payload](&StatusError{
			Method:   req.Method,
			Response: resp,
			Err:      classify.NewNetworkError(err),
		})
	}

	if !o.accept(resp.StatusCode) {
		log.Debug("http status rejected", "method", req.Method, "status", resp.StatusCode)
		return task.Failure[Payload](&StatusError{
			Code:     resp.StatusCode,
			Method:   req.Method,
			Header:   resp.Header,
			Body:     data,
			Response: resp,
		})
	}
	return task.Success(Payload{Data: data, Response: resp, Truncated: truncated})
}

// transportError wraps a client failure. A request aborted through ctx is
// cancelled or timed out no matter how the transport phrased it.
func transportError(ctx context.Context, err error) *classify.NetworkError {
	cause := context.Cause(ctx)
	if cause == nil {
		return classify.NewNetworkError(err)
	}
	if !errors.Is(err, cause) {
		err = fmt.Errorf("%w: %w", cause, err)
	}
	code := classify.CodeCancelled
	if classify.CodeOf(cause) == classify.CodeTimedOut {
		code = classify.CodeTimedOut
	}
	return &classify.NetworkError{Code: code, Err: err}
}

func requestName(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "http"
	}
	return req.Method + " " + req.URL.Redacted()
}

// MakeNetworkResponse builds the classified response of a finished data task.
// It reports false while t is still pending.
func MakeNetworkResponse(t task.OutputTask[Payload]) (classify.ClassifiedResponse, bool) {
	r, ok := t.Output().Result()
	if !ok {
		return classify.ClassifiedResponse{}, false
	}
	if r.IsSuccess() {
		return classify.NewClassifiedResponse(r.Value().Response, nil), true
	}

	var resp *http.Response
	var se *StatusError
	if errors.As(r.Err(), &se) {
		resp = se.Response
	}
	return classify.NewClassifiedResponse(resp, r.Err()), true
}

// Fetch runs a data task on exec and waits for it. If ctx ends first the task
// is cancelled, which aborts the request.
func Fetch(ctx context.Context, exec task.Executor, client *http.Client, req *http.Request, opts ...Option) (Payload, classify.ClassifiedResponse, error) {
	t := NewDataTask(client, req, opts...)
	if err := exec.Submit(t); err != nil {
		return Payload{}, classify.ClassifiedResponse{}, fmt.Errorf("procedure: submit data task: %w", err)
	}

	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Cancel(context.Cause(ctx))
		<-t.Done()
	}

	resp, _ := MakeNetworkResponse(t)
	r, _ := t.Output().Result()
	return r.Value(), resp, r.Err()
}

// StatusError implements classify.HTTPError.
type StatusError struct {
	Code     int
	Method   string
	Header   http.Header
	Body     []byte
	Response *http.Response
	Err      error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "http status " + classify.StatusCode(e.Code).String()
}

func (e *StatusError) Unwrap() error { return e.Err }

func (e *StatusError) HTTPStatusCode() int { return e.Code }
func (e *StatusError) HTTPMethod() string  { return e.Method }

func (e *StatusError) RetryAfter() (time.Duration, bool) {
	if e.Header == nil {
		return 0, false
	}
	s := e.Header.Get("Retry-After")
	if s == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(s); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(s); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}
