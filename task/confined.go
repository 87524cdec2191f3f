package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ConfinedTask runs its block on a designated Executor instead of the
// goroutine that calls Execute. The work is done by a child ResultTask; the
// parent finishes when the child finishes or is cancelled.
//
// Child success finishes the parent with the child's value. A child failure
// becomes a *DependencyError of kind DependencyFinished, a child cancellation
// one of kind DependencyCancelled.
type ConfinedTask[T any] struct {
	*Base[T]
	block    func() (T, error)
	executor Executor

	mu    sync.Mutex
	child *ResultTask[T]
}

func NewConfined[T any](executor Executor, block func() (T, error), opts ...Option) *ConfinedTask[T] {
	return &ConfinedTask[T]{
		Base:     NewBase[T]("confined", opts...),
		block:    block,
		executor: executor,
	}
}

// NewConfinedBlock is NewConfined for work without an output value.
func NewConfinedBlock(executor Executor, block func() error, opts ...Option) *ConfinedTask[Void] {
	var fn func() (Void, error)
	if block != nil {
		fn = func() (Void, error) { return Void{}, block() }
	}
	return NewConfined(executor, fn, opts...)
}

// Child returns the child task created by Execute, or nil before Execute.
func (t *ConfinedTask[T]) Child() *ResultTask[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.child
}

func (t *ConfinedTask[T]) Execute(context.Context) {
	if !t.Begin() {
		return
	}
	if t.executor == nil {
		t.Finish(ErrNoExecutor)
		return
	}

	child := NewResult(t.block, WithName(t.Name()+".child"), WithLogger(t.log))
	child.Subscribe(func(ev Event) {
		switch ev.Kind {
		case EventCancelled:
			t.Finish(&DependencyError{Kind: DependencyCancelled, Err: ev.Err})
		case EventFinished:
			if ev.Err != nil {
				t.Finish(&DependencyError{Kind: DependencyFinished, Err: ev.Err})
				return
			}
			if r, ok := child.Output().Result(); ok {
				t.FinishWithResult(r)
			}
		}
	})

	t.mu.Lock()
	t.child = child
	t.mu.Unlock()

	// Cancel may have landed before the child was visible to it.
	if t.IsCancelled() {
		child.Cancel(t.CancelReason())
	}

	t.handOff(child)
}

// handOff gives child to the executor without blocking the caller. A
// TrySubmitter that is full gets the child from a goroutine, so a confined
// task running on its own serial queue never waits on itself.
func (t *ConfinedTask[T]) handOff(child *ResultTask[T]) {
	ts, ok := t.executor.(TrySubmitter)
	if !ok {
		if err := t.executor.Submit(child); err != nil {
			t.Finish(fmt.Errorf("procedure: submit confined task: %w", err))
		}
		return
	}

	err := ts.TrySubmit(child)
	switch {
	case err == nil:
	case errors.Is(err, ErrExecutorFull):
		go func() {
			if err := ts.Submit(child); err != nil {
				t.Finish(fmt.Errorf("procedure: submit confined task: %w", err))
			}
		}()
	default:
		t.Finish(fmt.Errorf("procedure: submit confined task: %w", err))
	}
}
