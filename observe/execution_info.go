package observe

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type executionInfoKey struct{}

// ExecutionInfo is per-execution metadata attached to the context a queue
// passes to Execute.
type ExecutionInfo struct {
	Queue    string
	Worker   int
	TaskID   uuid.UUID
	TaskName string
	Enqueued time.Time
}

// WithExecutionInfo returns a context derived from ctx that carries info.
func WithExecutionInfo(ctx context.Context, info ExecutionInfo) context.Context {
	return context.WithValue(ctx, executionInfoKey{}, info)
}

// ExecutionFromContext returns the ExecutionInfo from ctx, if present.
func ExecutionFromContext(ctx context.Context) (ExecutionInfo, bool) {
	if ctx == nil {
		return ExecutionInfo{}, false
	}
	info, ok := ctx.Value(executionInfoKey{}).(ExecutionInfo)
	return info, ok
}
