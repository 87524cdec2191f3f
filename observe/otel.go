package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/aponysus/procedure"

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// OTelObserver records queue lifecycle metrics through an OpenTelemetry meter.
type OTelObserver struct {
	BaseObserver

	scheduled metric.Int64Counter
	finished  metric.Int64Counter
	skipped   metric.Int64Counter
	duration  metric.Float64Histogram
	queueWait metric.Float64Histogram
}

// NewOTelObserver creates the instruments on meter. A nil meter uses the
// global meter provider.
func NewOTelObserver(meter metric.Meter) (*OTelObserver, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	o := &OTelObserver{}
	var err error
	if o.scheduled, err = meter.Int64Counter(
		"procedure.tasks.scheduled",
		metric.WithDescription("Tasks submitted to a queue"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create scheduled counter: %w", err)
	}
	if o.finished, err = meter.Int64Counter(
		"procedure.tasks.finished",
		metric.WithDescription("Tasks that reached a terminal outcome, by classification"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create finished counter: %w", err)
	}
	if o.skipped, err = meter.Int64Counter(
		"procedure.tasks.skipped",
		metric.WithDescription("Tasks cancelled before a worker dequeued them"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}
	if o.duration, err = meter.Float64Histogram(
		"procedure.task.duration",
		metric.WithDescription("Time from execute to finish"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if o.queueWait, err = meter.Float64Histogram(
		"procedure.task.queue_wait",
		metric.WithDescription("Time a task spent queued before it started or was skipped"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, fmt.Errorf("create queue wait histogram: %w", err)
	}
	return o, nil
}

func (o *OTelObserver) OnSchedule(ctx context.Context, info ExecutionInfo) {
	o.scheduled.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", info.Queue)))
}

func (o *OTelObserver) OnFinish(ctx context.Context, rec Record) {
	attrs := metric.WithAttributes(
		attribute.String("queue", rec.Queue),
		attribute.String("task", rec.Task),
		attribute.String("outcome", rec.Outcome.Kind.String()),
		attribute.String("reason", rec.Outcome.Reason),
		attribute.Bool("timed_out", rec.TimedOut),
	)
	o.finished.Add(ctx, 1, attrs)
	o.duration.Record(ctx, rec.Duration().Seconds(), metric.WithAttributes(
		attribute.String("queue", rec.Queue),
		attribute.String("outcome", rec.Outcome.Kind.String()),
	))
	o.queueWait.Record(ctx, rec.QueueWait().Seconds(), metric.WithAttributes(attribute.String("queue", rec.Queue)))
}

func (o *OTelObserver) OnSkip(ctx context.Context, rec Record) {
	o.skipped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", rec.Queue),
		attribute.String("task", rec.Task),
	))
	o.queueWait.Record(ctx, rec.QueueWait().Seconds(), metric.WithAttributes(attribute.String("queue", rec.Queue)))
}
