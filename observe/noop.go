package observe

import "context"

// NoopObserver implements Observer with no-op methods.
type NoopObserver struct{}

func (NoopObserver) OnSchedule(context.Context, ExecutionInfo) {}
func (NoopObserver) OnStart(context.Context, ExecutionInfo)    {}
func (NoopObserver) OnFinish(context.Context, Record)          {}
func (NoopObserver) OnSkip(context.Context, Record)            {}
