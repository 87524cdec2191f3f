// Package queue provides execution contexts that run tasks: FIFO worker
// queues, single-worker serial queues and the shared main queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aponysus/procedure/classify"
	"github.com/aponysus/procedure/internal"
	"github.com/aponysus/procedure/logger"
	"github.com/aponysus/procedure/observe"
	"github.com/aponysus/procedure/task"
)

const tracerName = "github.com/aponysus/procedure/queue"

// Scheduler is the contract a task runner offers: schedule t for a single
// Execute call. A task that is cancelled by the time it would run is never
// executed.
type Scheduler interface {
	Schedule(t task.Task) error
}

var (
	_ Scheduler         = (*Queue)(nil)
	_ task.TrySubmitter = (*Queue)(nil)
)

type item struct {
	t        task.Task
	enqueued time.Time
}

// Queue runs submitted tasks on a fixed set of worker goroutines in FIFO
// order. Workers start at construction and stop on Close or when the
// construction context is cancelled. Once that context is cancelled no
// further task runs; tasks still buffered are finished as cancelled.
type Queue struct {
	name       string
	workers    int
	buffer     int
	timeout    time.Duration
	log        logger.Logger
	observer   observe.Observer
	tracer     trace.Tracer
	classifier classify.Classifier

	ctx   context.Context
	stop  context.CancelFunc
	items chan item
	group errgroup.Group

	// inflight counts tasks that started and have not finished.
	inflight sync.WaitGroup

	// closing is closed before mu is taken for writing, so a Submit blocked
	// on a full buffer lets go of its read lock.
	closing     chan struct{}
	closingOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

// New builds a queue and starts its workers. ctx is the parent of every
// execution context; cancelling it stops the workers.
func New(ctx context.Context, opts ...Option) *Queue {
	if ctx == nil {
		ctx = context.Background()
	}
	q := &Queue{
		name:       defaultName,
		workers:    runtime.GOMAXPROCS(0),
		buffer:     defaultBuffer,
		observer:   observe.NoopObserver{},
		classifier: classify.AutoClassifier{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	if q.log == nil {
		q.log = logger.FromContext(ctx)
	}
	if q.tracer == nil {
		q.tracer = otel.Tracer(tracerName)
	}
	q.log = q.log.With("queue", q.name)

	q.ctx, q.stop = context.WithCancel(ctx)
	q.items = make(chan item, q.buffer)
	q.closing = make(chan struct{})
	context.AfterFunc(q.ctx, q.abandon)
	for i := 0; i < q.workers; i++ {
		q.group.Go(func() error {
			return q.work(i)
		})
	}
	q.log.Debug("queue started", "workers", q.workers, "buffer", q.buffer)
	return q
}

// NewSerial builds a single-worker queue: tasks run one at a time in
// submission order.
func NewSerial(ctx context.Context, opts ...Option) *Queue {
	return New(ctx, append(opts, WithWorkers(1))...)
}

func (q *Queue) Name() string { return q.name }
func (q *Queue) Workers() int { return q.workers }

// Len is the number of tasks waiting for a worker.
func (q *Queue) Len() int { return len(q.items) }

// Submit enqueues t, blocking while the buffer is full.
func (q *Queue) Submit(t task.Task) error {
	return q.enqueue(t, true)
}

// TrySubmit enqueues t or fails with ErrQueueFull without blocking.
func (q *Queue) TrySubmit(t task.Task) error {
	return q.enqueue(t, false)
}

// Schedule is Submit under the Scheduler contract.
func (q *Queue) Schedule(t task.Task) error {
	return q.Submit(t)
}

func (q *Queue) enqueue(t task.Task, block bool) error {
	if internal.IsTypedNil(t) {
		return ErrNilTask
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed || q.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrQueueClosed, q.name)
	}

	it := item{t: t, enqueued: time.Now()}
	if block {
		select {
		case q.items <- it:
		case <-q.closing:
			return fmt.Errorf("%w: %s", ErrQueueClosed, q.name)
		case <-q.ctx.Done():
			return fmt.Errorf("%w: %s", ErrQueueClosed, q.name)
		}
	} else {
		select {
		case q.items <- it:
		default:
			return fmt.Errorf("%w: %s", ErrQueueFull, q.name)
		}
	}

	q.observer.OnSchedule(q.ctx, observe.ExecutionInfo{
		Queue:    q.name,
		TaskID:   t.ID(),
		TaskName: t.Name(),
		Enqueued: it.enqueued,
	})
	return nil
}

// Close is Shutdown without a deadline.
func (q *Queue) Close() error {
	return q.Shutdown(context.Background())
}

// Shutdown stops accepting tasks, including Submit calls blocked on a full
// buffer, and waits until the workers have drained the buffer and every
// started task has finished, including asynchronous ones. If ctx ends first, the execution contexts of in-flight tasks are cancelled,
// tasks still queued are finished as cancelled and ctx's error is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.close()

	var werr error
	done := make(chan struct{})
	go func() {
		werr = q.group.Wait()
		q.inflight.Wait()
		if werr == nil {
			werr = context.Cause(q.ctx)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		q.stop()
		q.drain()
		q.log.Warn("queue shutdown interrupted", "error", ctx.Err())
		return ctx.Err()
	}

	q.drain()
	q.stop()
	q.log.Debug("queue stopped")
	return werr
}

// drain finishes whatever the workers left in the closed buffer.
func (q *Queue) drain() {
	for it := range q.items {
		q.skip(it, context.Cause(q.ctx))
	}
}

// abandon runs once the queue context is done. It closes the buffer and
// skips what is left in it, so waiters are released even while every
// worker is stuck in a task.
func (q *Queue) abandon() {
	q.close()
	q.drain()
}

func (q *Queue) close() {
	q.closingOnce.Do(func() { close(q.closing) })
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()
}

func (q *Queue) work(worker int) error {
	for it := range q.items {
		if q.ctx.Err() != nil {
			q.skip(it, context.Cause(q.ctx))
			continue
		}
		q.run(worker, it)
	}
	return context.Cause(q.ctx)
}

func (q *Queue) run(worker int, it item) {
	t := it.t
	if t.IsFinished() {
		q.log.Warn("dropping task finished before it ran", "task", t.Name(), "task_id", t.ID().String())
		return
	}
	if t.IsCancelled() {
		q.skip(it, t.CancelReason())
		return
	}

	info := observe.ExecutionInfo{
		Queue:    q.name,
		Worker:   worker,
		TaskID:   t.ID(),
		TaskName: t.Name(),
		Enqueued: it.enqueued,
	}
	log := q.log.With("task", t.Name(), "task_id", t.ID().String(), "worker", worker)

	ctx, cancel := context.WithCancelCause(q.ctx)
	ctx = observe.WithExecutionInfo(ctx, info)
	ctx = logger.ContextWithLogger(ctx, log)
	ctx, span := q.tracer.Start(ctx, "procedure.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("procedure.queue", q.name),
			attribute.String("procedure.task", t.Name()),
			attribute.String("procedure.task_id", t.ID().String()),
			attribute.Int("procedure.worker", worker),
		),
	)

	q.inflight.Add(1)
	start := time.Now()
	var timer *time.Timer
	if q.timeout > 0 {
		timeout := q.timeout
		timer = time.AfterFunc(timeout, func() {
			terr := &task.TimeoutError{After: timeout}
			t.Cancel(terr)
			if t.Finish(terr) {
				log.Warn("task timed out", "after", timeout)
			}
		})
	}

	t.Subscribe(func(ev task.Event) {
		switch ev.Kind {
		case task.EventCancelled:
			reason := ev.Err
			if reason == nil {
				reason = task.ErrCancelled
			}
			cancel(reason)
		case task.EventFinished:
			if timer != nil {
				timer.Stop()
			}
			q.finish(ctx, span, info, start, ev.Err)
			cancel(nil)
			q.inflight.Done()
		}
	})

	q.observer.OnStart(ctx, info)
	q.execute(ctx, log, t)
}

func (q *Queue) execute(ctx context.Context, log logger.Logger, t task.Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task execute panicked", "panic", r)
			t.Finish(&task.PanicError{Task: t.Name(), Value: r, Stack: debug.Stack()})
		}
	}()
	t.Execute(ctx)
}

func (q *Queue) finish(ctx context.Context, span trace.Span, info observe.ExecutionInfo, start time.Time, err error) {
	var te *task.TimeoutError
	rec := observe.Record{
		TaskID:   info.TaskID,
		Task:     info.TaskName,
		Queue:    q.name,
		Enqueued: info.Enqueued,
		Start:    start,
		End:      time.Now(),
		Err:      err,
		Outcome:  q.classifier.Classify(nil, err),
		TimedOut: errors.As(err, &te),
	}

	span.SetAttributes(
		attribute.String("procedure.outcome", rec.Outcome.Kind.String()),
		attribute.String("procedure.reason", rec.Outcome.Reason),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	q.observer.OnFinish(ctx, rec)
}

// skip finishes a task that must not run. reason is the cancellation reason,
// if any.
func (q *Queue) skip(it item, reason error) {
	t := it.t
	if !t.Finish(&task.CancelledError{Reason: reason}) {
		return
	}
	q.log.Debug("skipped cancelled task", "task", t.Name(), "task_id", t.ID().String())
	q.observer.OnSkip(q.ctx, observe.Record{
		TaskID:   t.ID(),
		Task:     t.Name(),
		Queue:    q.name,
		Enqueued: it.enqueued,
		End:      time.Now(),
		Err:      t.Err(),
		Outcome:  q.classifier.Classify(nil, t.Err()),
	})
}
