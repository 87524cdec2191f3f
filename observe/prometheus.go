package observe

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports queue lifecycle metrics as Prometheus collectors.
type PrometheusObserver struct {
	BaseObserver

	scheduled *prometheus.CounterVec
	finished  *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewPrometheusObserver registers its collectors on reg. namespace prefixes
// every metric name and may be empty.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_scheduled_total",
			Help:      "Tasks submitted to a queue.",
		}, []string{"queue"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal outcome, by classification.",
		}, []string{"queue", "outcome", "reason"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_skipped_total",
			Help:      "Tasks cancelled before a worker dequeued them.",
		}, []string{"queue"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time from execute to finish.",
			Buckets:   durationBuckets,
		}, []string{"queue", "outcome"}),
	}
	for _, c := range []prometheus.Collector{o.scheduled, o.finished, o.skipped, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register task metrics: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) OnSchedule(_ context.Context, info ExecutionInfo) {
	o.scheduled.WithLabelValues(info.Queue).Inc()
}

func (o *PrometheusObserver) OnFinish(_ context.Context, rec Record) {
	kind := rec.Outcome.Kind.String()
	o.finished.WithLabelValues(rec.Queue, kind, rec.Outcome.Reason).Inc()
	o.duration.WithLabelValues(rec.Queue, kind).Observe(rec.Duration().Seconds())
}

func (o *PrometheusObserver) OnSkip(_ context.Context, rec Record) {
	o.skipped.WithLabelValues(rec.Queue).Inc()
}
