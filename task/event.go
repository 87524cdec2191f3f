package task

import "sync"

// EventKind tags the lifecycle events a task publishes.
type EventKind int

const (
	EventCancelled EventKind = iota + 1
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventCancelled:
		return "cancelled"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers. For EventFinished, Err is the task's
// failure (nil on success) and the output is already settled. For
// EventCancelled, Err is the reason passed to Cancel.
type Event struct {
	Kind EventKind
	Err  error
}

type subscription struct {
	id uint64
	fn func(Event)

	mu         sync.Mutex
	pending    []Event
	delivering bool
	finished   bool
}

// deliver hands ev to the subscriber. Calls to fn never overlap: an event
// raised while fn runs, on any goroutine or from fn itself, is queued and
// handed over by the goroutine already delivering. A finish event is
// delivered at most once, and cancel events queued behind it are dropped.
func (s *subscription) deliver(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true

	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		if s.finished {
			continue
		}
		if next.Kind == EventFinished {
			s.finished = true
		}
		s.mu.Unlock()
		s.fn(next)
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

// Registration is the handle returned by Subscribe.
type Registration struct {
	once   sync.Once
	cancel func()
}

// Cancel stops future deliveries. Deliveries already in flight may still run.
func (r *Registration) Cancel() {
	if r == nil || r.cancel == nil {
		return
	}
	r.once.Do(r.cancel)
}
