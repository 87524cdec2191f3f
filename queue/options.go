package queue

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/procedure/classify"
	"github.com/aponysus/procedure/internal"
	"github.com/aponysus/procedure/logger"
	"github.com/aponysus/procedure/observe"
)

const (
	defaultName   = "queue"
	defaultBuffer = 64
)

// Option configures a Queue.
type Option func(*Queue)

// WithName sets the queue name used in logs, spans and metrics.
func WithName(name string) Option {
	return func(q *Queue) {
		if name != "" {
			q.name = name
		}
	}
}

// WithWorkers sets the number of worker goroutines. Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBuffer sets how many tasks may wait for a worker.
func WithBuffer(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.buffer = n
		}
	}
}

// WithTaskTimeout cancels and fails any task still unfinished d after it
// started. Zero disables the timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.timeout = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithObserver sets the lifecycle observer.
func WithObserver(o observe.Observer) Option {
	return func(q *Queue) {
		if internal.IsTypedNil(o) {
			return
		}
		q.observer = o
	}
}

// WithTracer sets the tracer used for execution spans.
func WithTracer(t trace.Tracer) Option {
	return func(q *Queue) {
		if t != nil {
			q.tracer = t
		}
	}
}

// WithClassifier sets the classifier applied to every finished task before it
// is reported to the observer.
func WithClassifier(c classify.Classifier) Option {
	return func(q *Queue) {
		if internal.IsTypedNil(c) {
			return
		}
		q.classifier = c
	}
}
