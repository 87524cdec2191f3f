package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aponysus/procedure/classify"
	"github.com/aponysus/procedure/logger"
	"github.com/aponysus/procedure/observe"
	"github.com/aponysus/procedure/task"
)

func quiet() task.Option { return task.WithLogger(logger.Nop()) }

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	q := New(t.Context(), append([]Option{WithLogger(logger.Nop())}, opts...)...)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func waitDone(t *testing.T, tk task.Task) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not finish", tk.Name())
	}
}

// spyTask records every Execute call the queue makes.
type spyTask struct {
	*task.Base[task.Void]
	executed  atomic.Int32
	panicWith any
}

func newSpy(name string) *spyTask {
	return &spyTask{Base: task.NewBase[task.Void](name, quiet())}
}

func (s *spyTask) Execute(context.Context) {
	s.executed.Add(1)
	if !s.Begin() {
		return
	}
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	s.Finish(nil)
}

// blockWorker occupies a serial queue's worker until the returned release
// function is called.
func blockWorker(t *testing.T, q *Queue) (release func()) {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	require.NoError(t, q.Submit(task.NewBlock(func() error {
		close(started)
		<-gate
		return nil
	}, task.WithName("gate"), quiet())))
	<-started
	var once sync.Once
	release = func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return release
}

func TestQueue_RunsResultTask(t *testing.T) {
	q := newTestQueue(t, WithName("compute"), WithWorkers(4))
	assert.Equal(t, "compute", q.Name())
	assert.Equal(t, 4, q.Workers())

	tk := task.NewResult(func() (int, error) { return 42, nil }, quiet())
	require.NoError(t, q.Schedule(tk))

	waitDone(t, tk)
	v, ok := tk.Output().Value()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestSerialQueue_FIFO(t *testing.T) {
	q := NewSerial(t.Context(), WithLogger(logger.Nop()), WithBuffer(128))
	assert.Equal(t, 1, q.Workers())

	var mu sync.Mutex
	var order []int
	tasks := make([]task.Task, 0, 100)
	for i := 0; i < 100; i++ {
		tk := task.NewBlock(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}, quiet())
		tasks = append(tasks, tk)
		require.NoError(t, q.Submit(tk))
	}
	require.NoError(t, q.Close())

	require.Len(t, order, 100)
	for i, v := range order {
		require.Equal(t, i, v)
	}
	for _, tk := range tasks {
		assert.True(t, tk.IsFinished())
	}
}

func TestQueue_CancelledTaskIsNeverExecuted(t *testing.T) {
	capture := &observe.Capture{}
	q := NewSerial(t.Context(), WithLogger(logger.Nop()), WithObserver(capture))
	release := blockWorker(t, q)

	spy := newSpy("victim")
	require.NoError(t, q.Schedule(spy))
	reason := errors.New("user navigated away")
	spy.Cancel(reason)

	release()
	require.NoError(t, q.Close())

	assert.Zero(t, spy.executed.Load(), "scheduler must not execute a cancelled task")
	require.True(t, spy.IsFinished())
	assert.ErrorIs(t, spy.Err(), task.ErrCancelled)
	assert.ErrorIs(t, spy.Err(), reason)

	recs := capture.Records()
	require.Len(t, recs, 2)
	skipped := recs[1]
	assert.Equal(t, "victim", skipped.Task)
	assert.True(t, skipped.Start.IsZero())
	assert.Equal(t, classify.OutcomeAbort, skipped.Outcome.Kind)
}

func TestQueue_ExecutesUncancelledSpyOnce(t *testing.T) {
	q := newTestQueue(t)
	spy := newSpy("spy")
	require.NoError(t, q.Submit(spy))
	waitDone(t, spy)
	assert.Equal(t, int32(1), spy.executed.Load())
}

func TestQueue_ExecutePanicIsRecorded(t *testing.T) {
	q := newTestQueue(t)
	spy := newSpy("panicky")
	spy.panicWith = "boom"
	require.NoError(t, q.Submit(spy))

	waitDone(t, spy)
	var pe *task.PanicError
	require.ErrorAs(t, spy.Err(), &pe)
	assert.Equal(t, "boom", pe.Value)
}

func TestQueue_TaskTimeout(t *testing.T) {
	capture := &observe.Capture{}
	q := New(t.Context(), WithLogger(logger.Nop()), WithTaskTimeout(20*time.Millisecond), WithObserver(capture))

	ctxCause := make(chan error, 1)
	tk := task.NewAsyncBlock(func(ctx context.Context, _ func(error)) {
		go func() {
			<-ctx.Done()
			ctxCause <- context.Cause(ctx)
		}()
	}, task.WithName("hang"), quiet())
	require.NoError(t, q.Submit(tk))

	waitDone(t, tk)
	assert.True(t, tk.IsCancelled())
	assert.ErrorIs(t, tk.Err(), task.ErrTimedOut)
	var te *task.TimeoutError
	require.ErrorAs(t, tk.Err(), &te)
	assert.Equal(t, 20*time.Millisecond, te.After)

	select {
	case cause := <-ctxCause:
		assert.ErrorIs(t, cause, task.ErrTimedOut)
	case <-time.After(2 * time.Second):
		t.Fatal("execution context was not cancelled")
	}

	require.NoError(t, q.Close())
	rec := capture.Last()
	require.NotNil(t, rec)
	assert.True(t, rec.TimedOut)
	assert.Equal(t, "network_timeout", rec.Outcome.Reason)
}

func TestQueue_TimeoutDoesNotOverrideFinishedResult(t *testing.T) {
	q := newTestQueue(t, WithTaskTimeout(time.Hour))
	tk := task.NewResult(func() (string, error) { return "fast", nil }, quiet())
	require.NoError(t, q.Submit(tk))
	waitDone(t, tk)
	assert.NoError(t, tk.Err())
	assert.False(t, tk.IsCancelled())
}

func TestQueue_UserCancelCancelsExecutionContext(t *testing.T) {
	q := newTestQueue(t)
	started := make(chan struct{})
	reason := errors.New("stop")
	tk := task.NewAsyncBlock(func(ctx context.Context, finish func(error)) {
		close(started)
		go func() {
			<-ctx.Done()
			finish(context.Cause(ctx))
		}()
	}, quiet())
	require.NoError(t, q.Submit(tk))
	<-started

	tk.Cancel(reason)
	waitDone(t, tk)
	assert.ErrorIs(t, tk.Err(), reason)
}

func TestQueue_ExecutionInfoInContext(t *testing.T) {
	q := newTestQueue(t, WithName("io"))
	var got observe.ExecutionInfo
	var ok bool
	tk := task.NewAsyncBlock(func(ctx context.Context, finish func(error)) {
		got, ok = observe.ExecutionFromContext(ctx)
		finish(nil)
	}, task.WithName("inspect"), quiet())
	require.NoError(t, q.Submit(tk))
	waitDone(t, tk)

	require.True(t, ok)
	assert.Equal(t, "io", got.Queue)
	assert.Equal(t, "inspect", got.TaskName)
	assert.Equal(t, tk.ID(), got.TaskID)
	assert.False(t, got.Enqueued.IsZero())
}

func TestQueue_ConfinedTaskRunsOnQueue(t *testing.T) {
	serial := newTestQueue(t, WithWorkers(1), WithName("confined"))
	parent := task.NewConfined(serial, func() (string, error) { return "from worker", nil }, quiet())

	parent.Execute(t.Context())
	waitDone(t, parent)
	v, ok := parent.Output().Value()
	require.True(t, ok)
	assert.Equal(t, "from worker", v)
}

func TestQueue_ConfinedOnItsOwnSerialQueue(t *testing.T) {
	q := NewSerial(t.Context(), WithLogger(logger.Nop()), WithBuffer(0))
	parent := task.NewConfined(q, func() (string, error) { return "later", nil }, quiet())
	require.NoError(t, q.Submit(parent))

	waitDone(t, parent)
	v, ok := parent.Output().Value()
	require.True(t, ok)
	assert.Equal(t, "later", v)
	require.NoError(t, q.Close())
}

func TestQueue_ConfinedOnSaturatedSerialQueue(t *testing.T) {
	q := NewSerial(t.Context(), WithLogger(logger.Nop()), WithBuffer(1))
	filler := newSpy("filler")
	parent := task.NewConfinedBlock(q, func() error { return nil }, quiet())
	outer := task.NewBlock(func() error {
		if err := q.TrySubmit(filler); err != nil {
			return err
		}
		parent.Execute(context.Background())
		return nil
	}, task.WithName("outer"), quiet())
	require.NoError(t, q.Submit(outer))

	waitDone(t, outer)
	require.NoError(t, outer.Err())
	waitDone(t, parent)
	require.NoError(t, parent.Err())
	require.NoError(t, q.Close())
	assert.True(t, filler.IsFinished())
	assert.Equal(t, int32(1), filler.executed.Load())
}

func TestQueue_ConfinedSubmitToClosedQueue(t *testing.T) {
	q := New(t.Context(), WithLogger(logger.Nop()))
	require.NoError(t, q.Close())

	parent := task.NewConfinedBlock(q, func() error { return nil }, quiet())
	parent.Execute(t.Context())
	require.True(t, parent.IsFinished())
	assert.ErrorIs(t, parent.Err(), ErrQueueClosed)
}

func TestQueue_SubmitErrors(t *testing.T) {
	q := New(t.Context(), WithLogger(logger.Nop()))
	assert.ErrorIs(t, q.Submit(nil), ErrNilTask)

	var typedNil *spyTask
	assert.ErrorIs(t, q.Submit(typedNil), ErrNilTask)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "close is idempotent")
	assert.ErrorIs(t, q.Submit(newSpy("late")), ErrQueueClosed)
}

func TestQueue_TrySubmitFull(t *testing.T) {
	q := NewSerial(t.Context(), WithLogger(logger.Nop()), WithBuffer(1))
	release := blockWorker(t, q)

	first, second := newSpy("first"), newSpy("second")
	require.NoError(t, q.TrySubmit(first))
	assert.Equal(t, 1, q.Len())
	err := q.TrySubmit(second)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, task.ErrExecutorFull)

	release()
	require.NoError(t, q.Close())
	assert.True(t, first.IsFinished())
	assert.False(t, second.IsFinished())
}

func TestQueue_ParentContextCancelStopsQueue(t *testing.T) {
	for range 20 {
		ctx, cancel := context.WithCancel(t.Context())
		q := New(ctx, WithLogger(logger.Nop()))
		cancel()

		assert.ErrorIs(t, q.Submit(newSpy("late")), ErrQueueClosed)
		assert.ErrorIs(t, q.Close(), context.Canceled)
	}
}

func TestQueue_ParentContextCancelSkipsBufferedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	q := NewSerial(ctx, WithLogger(logger.Nop()), WithBuffer(4))
	blockWorker(t, q)

	queued := newSpy("queued")
	require.NoError(t, q.Submit(queued))
	cancel()

	waitDone(t, queued)
	assert.Zero(t, queued.executed.Load())
	assert.ErrorIs(t, queued.Err(), task.ErrCancelled)
	assert.ErrorIs(t, queued.Err(), context.Canceled)
}

func TestQueue_ShutdownReleasesBlockedSubmit(t *testing.T) {
	q := NewSerial(t.Context(), WithLogger(logger.Nop()), WithBuffer(1))
	blockWorker(t, q)
	require.NoError(t, q.Submit(newSpy("buffered")))

	errc := make(chan error, 1)
	go func() { errc <- q.Submit(newSpy("blocked")) }()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("submit still blocked after shutdown")
	}
}

func TestQueue_CloseWaitsForAsyncTasks(t *testing.T) {
	q := New(t.Context(), WithLogger(logger.Nop()))
	tk := task.NewAsyncBlock(func(_ context.Context, finish func(error)) {
		go func() {
			time.Sleep(30 * time.Millisecond)
			finish(nil)
		}()
	}, quiet())
	require.NoError(t, q.Submit(tk))

	require.NoError(t, q.Close())
	assert.True(t, tk.IsFinished())
}

func TestQueue_ShutdownDeadline(t *testing.T) {
	q := New(t.Context(), WithLogger(logger.Nop()))
	started := make(chan struct{})
	ctxDone := make(chan struct{})
	tk := task.NewAsyncBlock(func(ctx context.Context, finish func(error)) {
		close(started)
		go func() {
			<-ctx.Done()
			close(ctxDone)
			finish(ctx.Err())
		}()
	}, quiet())
	require.NoError(t, q.Submit(tk))
	<-started

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-ctxDone:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight task context was not cancelled")
	}
	waitDone(t, tk)
}

func TestQueue_ObserverAndClassifier(t *testing.T) {
	capture := &observe.Capture{}
	boom := errors.New("boom")
	q := New(t.Context(),
		WithLogger(logger.Nop()),
		WithName("classified"),
		WithObserver(observe.MultiObserver{Observers: []observe.Observer{capture, observe.NoopObserver{}}}),
		WithClassifier(classify.ClassifierFunc(func(_ any, err error) classify.Outcome {
			if err != nil {
				return classify.Outcome{Kind: classify.OutcomeNonRetryable, Reason: "custom"}
			}
			return classify.Outcome{Kind: classify.OutcomeSuccess, Reason: "success"}
		})),
	)

	ok := task.NewBlock(func() error { return nil }, task.WithName("ok"), quiet())
	bad := task.NewBlock(func() error { return boom }, task.WithName("bad"), quiet())
	require.NoError(t, q.Submit(ok))
	require.NoError(t, q.Submit(bad))
	require.NoError(t, q.Close())

	byName := map[string]observe.Record{}
	for _, rec := range capture.Records() {
		byName[rec.Task] = rec
	}
	require.Len(t, byName, 2)
	assert.Equal(t, "success", byName["ok"].Outcome.Reason)
	assert.Equal(t, "custom", byName["bad"].Outcome.Reason)
	assert.Same(t, boom, byName["bad"].Err)
	assert.Equal(t, "classified", byName["bad"].Queue)
	assert.False(t, byName["bad"].Start.IsZero())
	assert.False(t, byName["bad"].End.Before(byName["bad"].Start))
}

func TestQueue_TracesExecution(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	q := New(t.Context(), WithLogger(logger.Nop()), WithTracer(tp.Tracer("test")), WithName("traced"))

	tk := task.NewBlock(func() error { return errors.New("failed") }, task.WithName("work"), quiet())
	require.NoError(t, q.Submit(tk))
	require.NoError(t, q.Close())

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "procedure.execute", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("procedure.queue", "traced"))
	assert.Contains(t, span.Attributes(), attribute.String("procedure.task", "work"))
}

func TestMain_IsSharedSerialQueue(t *testing.T) {
	m := Main()
	require.Same(t, m, Main())
	assert.Equal(t, MainQueueName, m.Name())
	assert.Equal(t, 1, m.Workers())

	other := New(t.Context(), WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = other.Close() })
	SetMain(other)
	SetMain(nil)
	assert.Same(t, m, Main())

	tk := task.NewResult(func() (int, error) { return 7, nil }, quiet())
	require.NoError(t, m.Submit(tk))
	waitDone(t, tk)
	v, _ := tk.Output().Value()
	assert.Equal(t, 7, v)
}
