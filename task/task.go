package task

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/aponysus/procedure/logger"
)

// State is the lifecycle position of a task.
type State int32

const (
	StateInitialized State = iota
	StateExecuting
	StateFinished
	// StateCancelled is reported for a task that was cancelled before it
	// started executing and has not yet recorded an outcome.
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateExecuting:
		return "executing"
	case StateFinished:
		return "finished"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrNilBlock is recorded when a block task is constructed without a block.
var ErrNilBlock = errors.New("procedure: nil block")

// Task is the scheduler-facing contract shared by every task.
type Task interface {
	ID() uuid.UUID
	Name() string

	// Execute runs the task's work. The owning scheduler calls it at most once
	// and never after the task has been cancelled.
	Execute(ctx context.Context)

	// Cancel requests cooperative cancellation. It never interrupts running
	// work and does not finish the task.
	Cancel(reason error)
	IsCancelled() bool
	CancelReason() error

	// Finish records a terminal outcome: nil is success with the zero value.
	// Only the first call to any finish entry point takes effect.
	Finish(err error) bool
	IsFinished() bool
	State() State
	Done() <-chan struct{}

	// Err returns the failure of a finished task, or nil.
	Err() error

	Subscribe(fn func(Event)) *Registration
}

// OutputTask is a Task that produces a typed output.
type OutputTask[T any] interface {
	Task
	Output() Outcome[T]
	FinishWithResult(r Result[T]) bool
}

// Executor is a designated execution context that tasks can be handed to.
type Executor interface {
	Submit(t Task) error
}

// TrySubmitter is an Executor that can refuse a task instead of blocking.
// A refusal for lack of room matches ErrExecutorFull.
type TrySubmitter interface {
	Executor
	TrySubmit(t Task) error
}

// Option configures a task at construction.
type Option func(*options)

type options struct {
	id     uuid.UUID
	name   string
	logger logger.Logger
}

// WithName sets the task's name used in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithID overrides the generated task identity.
func WithID(id uuid.UUID) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithLogger sets the logger the task reports lifecycle events to.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Base implements the Task state machine. Concrete tasks embed *Base and
// provide Execute.
type Base[T any] struct {
	id   uuid.UUID
	name string
	log  logger.Logger

	state     atomic.Int32
	cancelled atomic.Bool

	mu        sync.Mutex
	output    Outcome[T]
	cancelErr error
	subs      []*subscription
	nextSub   uint64
	done      chan struct{}
}

// NewBase builds the shared state for a task. defaultName is used when no
// WithName option is given.
func NewBase[T any](defaultName string, opts ...Option) *Base[T] {
	o := options{name: defaultName}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.id == uuid.Nil {
		o.id = uuid.New()
	}
	if o.logger == nil {
		o.logger = logger.GetDefault()
	}
	return &Base[T]{
		id:   o.id,
		name: o.name,
		log:  o.logger.With("task", o.name, "task_id", o.id.String()),
		done: make(chan struct{}),
	}
}

func (b *Base[T]) ID() uuid.UUID         { return b.id }
func (b *Base[T]) Name() string          { return b.name }
func (b *Base[T]) Logger() logger.Logger { return b.log }
func (b *Base[T]) Done() <-chan struct{} { return b.done }
func (b *Base[T]) IsCancelled() bool     { return b.cancelled.Load() }

func (b *Base[T]) IsFinished() bool {
	return State(b.state.Load()) == StateFinished
}

func (b *Base[T]) State() State {
	s := State(b.state.Load())
	if s == StateInitialized && b.cancelled.Load() {
		return StateCancelled
	}
	return s
}

// Output returns a snapshot of the output slot.
func (b *Base[T]) Output() Outcome[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.output
}

func (b *Base[T]) Err() error {
	return b.Output().Err()
}

func (b *Base[T]) CancelReason() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelErr
}

// Begin moves the task from initialized to executing. It returns false if
// Execute already ran, in which case the caller must return without doing work.
func (b *Base[T]) Begin() bool {
	if b.state.CompareAndSwap(int32(StateInitialized), int32(StateExecuting)) {
		return true
	}
	b.log.Warn("execute called on a task that already started", "state", b.State().String())
	return false
}

// FinishWithResult settles the output. Only the first call commits; it
// reports whether this call was the one that did.
func (b *Base[T]) FinishWithResult(r Result[T]) bool {
	b.mu.Lock()
	if b.output.ready {
		b.mu.Unlock()
		return false
	}
	b.output = Ready(r)
	b.state.Store(int32(StateFinished))
	subs := b.subs
	b.subs = nil
	close(b.done)
	b.mu.Unlock()

	if r.err != nil {
		b.log.Debug("task finished with error", "error", r.err)
	} else {
		b.log.Debug("task finished")
	}

	ev := Event{Kind: EventFinished, Err: r.err}
	for _, s := range subs {
		s.deliver(ev)
	}
	return true
}

// Finish is FinishWithResult for the common error-only case.
func (b *Base[T]) Finish(err error) bool {
	if err != nil {
		return b.FinishWithResult(Failure[T](err))
	}
	var zero T
	return b.FinishWithResult(Success(zero))
}

// Cancel sets the cancellation flag and notifies observers. It is a no-op on
// a finished or already cancelled task.
func (b *Base[T]) Cancel(reason error) {
	b.mu.Lock()
	if b.output.ready || b.cancelled.Load() {
		b.mu.Unlock()
		return
	}
	b.cancelled.Store(true)
	b.cancelErr = reason
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()

	b.log.Debug("task cancelled", "reason", reason)

	ev := Event{Kind: EventCancelled, Err: reason}
	for _, s := range subs {
		s.deliver(ev)
	}
}

// Subscribe registers fn for the task's cancel and finish events. Events that
// already happened are delivered immediately, in order, on the caller's goroutine.
func (b *Base[T]) Subscribe(fn func(Event)) *Registration {
	if fn == nil {
		return &Registration{}
	}

	b.mu.Lock()
	if b.output.ready {
		cancelled, reason, err := b.cancelled.Load(), b.cancelErr, b.output.result.err
		b.mu.Unlock()
		if cancelled {
			fn(Event{Kind: EventCancelled, Err: reason})
		}
		fn(Event{Kind: EventFinished, Err: err})
		return &Registration{}
	}

	s := &subscription{id: b.nextSub, fn: fn}
	b.nextSub++
	b.subs = append(b.subs, s)
	cancelled, reason := b.cancelled.Load(), b.cancelErr
	b.mu.Unlock()

	if cancelled {
		s.deliver(Event{Kind: EventCancelled, Err: reason})
	}
	return &Registration{cancel: func() { b.unsubscribe(s.id) }}
}

func (b *Base[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Base[T]) panicError(v any) *PanicError {
	b.log.Error("task block panicked", "panic", v)
	return &PanicError{Task: b.name, Value: v, Stack: debug.Stack()}
}
