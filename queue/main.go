package queue

import (
	"context"
	"sync"

	"github.com/aponysus/procedure/logger"
)

// MainQueueName is the name of the queue returned by Main.
const MainQueueName = "main"

var (
	mainQueue *Queue
	mainOnce  sync.Once
	mainMu    sync.Mutex
)

// Main returns the shared, lazily started serial queue. It is the default
// confined execution context for work that must not run concurrently with
// itself.
func Main() *Queue {
	mainOnce.Do(func() {
		mainMu.Lock()
		defer mainMu.Unlock()
		if mainQueue == nil {
			mainQueue = NewSerial(context.Background(), WithName(MainQueueName))
		}
	})
	return mainQueue
}

// SetMain installs q as the shared main queue. It must be called before Main
// is first used; later calls log a warning and do nothing. q should be serial.
func SetMain(q *Queue) {
	if q == nil {
		return
	}

	mainMu.Lock()
	initialized := mainQueue != nil
	mainMu.Unlock()
	if initialized {
		logger.GetDefault().Warn("queue: SetMain called after main queue already initialized; ignoring")
		return
	}

	mainOnce.Do(func() {
		mainMu.Lock()
		defer mainMu.Unlock()
		mainQueue = q
	})
}
