package task

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/procedure/logger"
)

func quiet() Option { return WithLogger(logger.Nop()) }

func waitDone(t *testing.T, tk Task) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %s did not finish", tk.Name())
	}
}

func TestBase_Identity(t *testing.T) {
	id := uuid.New()
	b := NewBase[int]("fallback", WithID(id), WithName("named"), quiet())
	assert.Equal(t, id, b.ID())
	assert.Equal(t, "named", b.Name())

	other := NewBase[int]("fallback", quiet())
	assert.Equal(t, "fallback", other.Name())
	assert.NotEqual(t, uuid.Nil, other.ID())
	assert.NotEqual(t, b.ID(), other.ID())
}

func TestBase_FinishIsSingleAssignment(t *testing.T) {
	b := NewBase[int]("t", quiet())

	require.True(t, b.FinishWithResult(Success(1)))
	assert.False(t, b.FinishWithResult(Success(2)))
	assert.False(t, b.Finish(errors.New("late")))

	v, ok := b.Output().Value()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateFinished, b.State())
	assert.True(t, b.IsFinished())
}

func TestBase_ConcurrentFinishHasOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		b := NewBase[int]("race", quiet())

		const writers = 32
		var wins atomic.Int32
		var winner atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})

		wg.Add(writers)
		for i := 0; i < writers; i++ {
			go func(v int) {
				defer wg.Done()
				<-start
				if b.FinishWithResult(Success(v)) {
					wins.Add(1)
					winner.Store(int32(v))
				}
			}(i)
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), wins.Load(), "round %d", round)
		v, ok := b.Output().Value()
		require.True(t, ok)
		assert.Equal(t, int(winner.Load()), v, "round %d", round)
	}
}

func TestBase_FinishNilIsVoidSuccess(t *testing.T) {
	b := NewBase[Void]("void", quiet())
	require.True(t, b.Finish(nil))

	r, ok := b.Output().Result()
	require.True(t, ok)
	assert.True(t, r.IsSuccess())
	assert.NoError(t, b.Err())
}

func TestBase_FinishErrorIsFailure(t *testing.T) {
	boom := errors.New("boom")
	b := NewBase[int]("t", quiet())
	require.True(t, b.Finish(boom))
	assert.Same(t, boom, b.Err())
}

func TestBase_DoneClosesOnFinish(t *testing.T) {
	b := NewBase[int]("t", quiet())
	select {
	case <-b.Done():
		t.Fatal("done closed before finish")
	default:
	}
	b.Finish(nil)
	select {
	case <-b.Done():
	default:
		t.Fatal("done not closed after finish")
	}
}

func TestBase_CancelIsCooperative(t *testing.T) {
	b := NewBase[int]("t", quiet())
	reason := errors.New("user")

	b.Cancel(reason)
	assert.True(t, b.IsCancelled())
	assert.Same(t, reason, b.CancelReason())
	assert.True(t, b.Output().IsPending(), "cancel must not finish the task")
	assert.Equal(t, StateCancelled, b.State())

	// A second cancel keeps the first reason.
	b.Cancel(errors.New("second"))
	assert.Same(t, reason, b.CancelReason())

	require.True(t, b.Finish(&CancelledError{Reason: reason}))
	assert.Equal(t, StateFinished, b.State())
	assert.ErrorIs(t, b.Err(), ErrCancelled)
}

func TestBase_CancelAfterFinishIsNoop(t *testing.T) {
	b := NewBase[int]("t", quiet())
	b.FinishWithResult(Success(3))
	b.Cancel(nil)
	assert.False(t, b.IsCancelled())
}

func TestBase_BeginOnlyOnce(t *testing.T) {
	b := NewBase[int]("t", quiet())
	assert.Equal(t, StateInitialized, b.State())
	require.True(t, b.Begin())
	assert.Equal(t, StateExecuting, b.State())
	assert.False(t, b.Begin())
}

func TestBase_SubscribeDeliversEachEventOnce(t *testing.T) {
	b := NewBase[int]("t", quiet())

	var mu sync.Mutex
	var got []Event
	b.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	reason := errors.New("stop")
	b.Cancel(reason)
	b.Cancel(reason)
	boom := errors.New("boom")
	b.Finish(boom)
	b.Finish(errors.New("again"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, Event{Kind: EventCancelled, Err: reason}, got[0])
	assert.Equal(t, Event{Kind: EventFinished, Err: boom}, got[1])
}

func TestBase_ObserverSeesSettledOutput(t *testing.T) {
	b := NewBase[string]("t", quiet())

	var seen Outcome[string]
	b.Subscribe(func(ev Event) {
		if ev.Kind == EventFinished {
			seen = b.Output()
		}
	})
	b.FinishWithResult(Success("done"))

	v, ok := seen.Value()
	require.True(t, ok)
	assert.Equal(t, "done", v)
}

func TestBase_LateSubscribeReplaysHistory(t *testing.T) {
	b := NewBase[int]("t", quiet())
	b.Cancel(nil)
	b.Finish(ErrCancelled)

	var kinds []EventKind
	reg := b.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	reg.Cancel()

	assert.Equal(t, []EventKind{EventCancelled, EventFinished}, kinds)
}

func TestBase_SubscribeAfterCancelGetsCancelImmediately(t *testing.T) {
	b := NewBase[int]("t", quiet())
	reason := errors.New("early")
	b.Cancel(reason)

	var events []Event
	b.Subscribe(func(ev Event) { events = append(events, ev) })
	require.Len(t, events, 1)
	assert.Equal(t, EventCancelled, events[0].Kind)
	assert.Same(t, reason, events[0].Err)

	b.Finish(nil)
	require.Len(t, events, 2)
	assert.Equal(t, EventFinished, events[1].Kind)
}

func TestRegistration_CancelStopsDelivery(t *testing.T) {
	b := NewBase[int]("t", quiet())

	var calls atomic.Int32
	reg := b.Subscribe(func(Event) { calls.Add(1) })
	keep := b.Subscribe(func(Event) { calls.Add(10) })
	reg.Cancel()
	reg.Cancel()

	b.Finish(nil)
	assert.Equal(t, int32(10), calls.Load())
	keep.Cancel()

	var nilReg *Registration
	nilReg.Cancel()
}

func TestBase_ConcurrentCancelAndFinish(t *testing.T) {
	for round := 0; round < 50; round++ {
		b := NewBase[int]("t", quiet())
		var finishes atomic.Int32
		b.Subscribe(func(ev Event) {
			if ev.Kind == EventFinished {
				finishes.Add(1)
			}
		})

		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); b.Cancel(fmt.Errorf("round %d", round)) }()
		go func() { defer wg.Done(); b.FinishWithResult(Success(1)) }()
		go func() { defer wg.Done(); b.Finish(ErrCancelled) }()
		wg.Wait()

		assert.Equal(t, int32(1), finishes.Load())
		assert.True(t, b.Output().IsReady())
	}
}

func TestBase_FinishFromCancelHandler(t *testing.T) {
	b := NewBase[int]("t", quiet())

	var kinds []EventKind
	b.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventCancelled {
			b.Finish(ErrCancelled)
		}
	})
	b.Cancel(nil)

	assert.Equal(t, []EventKind{EventCancelled, EventFinished}, kinds)
	assert.ErrorIs(t, b.Err(), ErrCancelled)
}

func TestBase_FinishWaitsBehindSlowCancelDelivery(t *testing.T) {
	b := NewBase[int]("t", quiet())

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var kinds []EventKind
	b.Subscribe(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
		if ev.Kind == EventCancelled {
			close(entered)
			<-release
		}
	})

	cancelled := make(chan struct{})
	go func() {
		defer close(cancelled)
		b.Cancel(errors.New("stop"))
	}()
	<-entered

	require.True(t, b.FinishWithResult(Success(1)))
	mu.Lock()
	assert.Equal(t, []EventKind{EventCancelled}, kinds, "finish must not overtake the cancel event")
	mu.Unlock()

	close(release)
	<-cancelled
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventCancelled, EventFinished}, kinds)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "initialized", StateInitialized.String())
	assert.Equal(t, "executing", StateExecuting.String())
	assert.Equal(t, "finished", StateFinished.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "finished", EventFinished.String())
	assert.Equal(t, "cancelled", EventCancelled.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
