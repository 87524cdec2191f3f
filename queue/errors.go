package queue

import (
	"errors"
	"fmt"

	"github.com/aponysus/procedure/task"
)

var (
	// ErrQueueClosed is returned when submitting to a closed or stopped queue.
	ErrQueueClosed = errors.New("procedure: queue closed")

	// ErrQueueFull is returned by TrySubmit when the buffer has no room. It
	// matches task.ErrExecutorFull.
	ErrQueueFull = fmt.Errorf("%w: queue full", task.ErrExecutorFull)

	// ErrNilTask is returned when submitting a nil task.
	ErrNilTask = errors.New("procedure: nil task")
)
