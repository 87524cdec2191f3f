package task

// Void is the output type of tasks that produce no value.
type Void = struct{}

// Result holds either a success value or a failure.
type Result[T any] struct {
	value T
	err   error
}

// Success returns a successful Result holding v.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Failure returns a failed Result holding err. A nil err is treated as success
// with the zero value.
func Failure[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// ResultOf builds a Result from the usual (value, error) pair.
func ResultOf[T any](v T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}

func (r Result[T]) IsSuccess() bool { return r.err == nil }
func (r Result[T]) IsFailure() bool { return r.err != nil }

// Err returns the failure, or nil on success.
func (r Result[T]) Err() error { return r.err }

// Value returns the success value. It is the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Get returns the (value, error) pair.
func (r Result[T]) Get() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}

// Outcome is the pending-or-ready slot a task writes its Result into.
//
// The zero Outcome is Pending.
type Outcome[T any] struct {
	ready  bool
	result Result[T]
}

// Pending returns an Outcome with no result yet.
func Pending[T any]() Outcome[T] {
	return Outcome[T]{}
}

// Ready returns a settled Outcome.
func Ready[T any](r Result[T]) Outcome[T] {
	return Outcome[T]{ready: true, result: r}
}

func (o Outcome[T]) IsPending() bool { return !o.ready }
func (o Outcome[T]) IsReady() bool   { return o.ready }

// Result returns the settled result and true, or false while pending.
func (o Outcome[T]) Result() (Result[T], bool) {
	return o.result, o.ready
}

// Value returns the success value, if the outcome is ready and successful.
func (o Outcome[T]) Value() (T, bool) {
	if !o.ready || o.result.err != nil {
		var zero T
		return zero, false
	}
	return o.result.value, true
}

// Err returns the failure of a ready outcome, or nil.
func (o Outcome[T]) Err() error {
	if !o.ready {
		return nil
	}
	return o.result.err
}
