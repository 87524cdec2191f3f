package observe

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aponysus/procedure/classify"
)

// Record describes one task's pass through a queue.
type Record struct {
	TaskID uuid.UUID
	Task   string
	Queue  string

	Enqueued time.Time
	Start    time.Time // zero for skipped tasks
	End      time.Time

	Err     error
	Outcome classify.Outcome

	// TimedOut is set when the queue's task timeout fired before the task finished.
	TimedOut bool
}

// QueueWait is the time between enqueue and start (or skip).
func (r Record) QueueWait() time.Duration {
	if r.Enqueued.IsZero() {
		return 0
	}
	if r.Start.IsZero() {
		return r.End.Sub(r.Enqueued)
	}
	return r.Start.Sub(r.Enqueued)
}

// Duration is the time between start and finish; zero if the task never ran.
func (r Record) Duration() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Observer receives lifecycle callbacks for tasks run by a queue.
//
// OnFinish fires when the task's output settles, which for asynchronous tasks
// can be well after Execute returned. OnSkip fires instead of OnStart and
// OnFinish for a task that was cancelled before it was dequeued.
type Observer interface {
	OnSchedule(ctx context.Context, info ExecutionInfo)
	OnStart(ctx context.Context, info ExecutionInfo)
	OnFinish(ctx context.Context, rec Record)
	OnSkip(ctx context.Context, rec Record)
}
