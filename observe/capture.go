package observe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Capture is an Observer that keeps every finished or skipped Record in memory.
type Capture struct {
	BaseObserver

	mu      sync.Mutex
	records []Record
	last    atomic.Pointer[Record]
}

func (c *Capture) OnFinish(_ context.Context, rec Record) { c.store(rec) }
func (c *Capture) OnSkip(_ context.Context, rec Record)   { c.store(rec) }

func (c *Capture) store(rec Record) {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	c.last.Store(&rec)
}

// Records returns a copy of the captured records in arrival order.
func (c *Capture) Records() []Record {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Last returns the most recent record, or nil if none has arrived.
func (c *Capture) Last() *Record {
	if c == nil {
		return nil
	}
	return c.last.Load()
}
