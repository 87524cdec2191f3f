package observe

import "context"

// BaseObserver implements Observer with no-op methods.
//
// Users can embed BaseObserver to implement only the callbacks they need.
type BaseObserver struct{}

func (BaseObserver) OnSchedule(context.Context, ExecutionInfo) {}
func (BaseObserver) OnStart(context.Context, ExecutionInfo)    {}
func (BaseObserver) OnFinish(context.Context, Record)          {}
func (BaseObserver) OnSkip(context.Context, Record)            {}

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) OnSchedule(ctx context.Context, info ExecutionInfo) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSchedule(ctx, info)
		}
	}
}

func (m MultiObserver) OnStart(ctx context.Context, info ExecutionInfo) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnStart(ctx, info)
		}
	}
}

func (m MultiObserver) OnFinish(ctx context.Context, rec Record) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnFinish(ctx, rec)
		}
	}
}

func (m MultiObserver) OnSkip(ctx context.Context, rec Record) {
	for _, o := range m.Observers {
		if o != nil {
			o.OnSkip(ctx, rec)
		}
	}
}
