// Package procedure runs work as tasks on the shared main queue.
//
// The subpackages hold the pieces: task defines the task model, queue
// schedules tasks, classify interprets their errors and observe reports on
// them.
package procedure

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aponysus/procedure/classify"
	httpint "github.com/aponysus/procedure/integrations/http"
	"github.com/aponysus/procedure/queue"
	"github.com/aponysus/procedure/task"
)

// Operation is work that reports only failure.
type Operation func(ctx context.Context) error

// OperationValue is work that produces a value.
type OperationValue[T any] func(ctx context.Context) (T, error)

// Init sets the shared main queue.
// It must be called before Do/DoValue are used.
func Init(q *queue.Queue) {
	queue.SetMain(q)
}

// Do runs op as a task on the main queue and waits for it.
func Do(ctx context.Context, op Operation, opts ...task.Option) error {
	_, err := DoValue(ctx, func(ctx context.Context) (task.Void, error) {
		return task.Void{}, op(ctx)
	}, opts...)
	return err
}

// DoValue runs op as a task on the main queue and waits for it. If ctx ends
// first the task is cancelled, which cancels the context op receives, and
// DoValue still waits for op to return.
func DoValue[T any](ctx context.Context, op OperationValue[T], opts ...task.Option) (T, error) {
	t := task.NewAsyncResult(func(ctx context.Context, finish func(task.Result[T])) {
		finish(task.ResultOf(op(ctx)))
	}, opts...)
	return wait(ctx, queue.Main(), t)
}

// Fetch sends req as a network data task on the main queue.
func Fetch(ctx context.Context, client *http.Client, req *http.Request, opts ...httpint.Option) (httpint.Payload, classify.ClassifiedResponse, error) {
	return httpint.Fetch(ctx, queue.Main(), client, req, opts...)
}

func wait[T any](ctx context.Context, exec task.Executor, t task.OutputTask[T]) (T, error) {
	var zero T
	if err := exec.Submit(t); err != nil {
		return zero, fmt.Errorf("procedure: submit %s: %w", t.Name(), err)
	}

	select {
	case <-t.Done():
	case <-ctx.Done():
		t.Cancel(context.Cause(ctx))
		<-t.Done()
	}

	r, _ := t.Output().Result()
	return r.Get()
}
