package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBufferSize = 256

// DrainTimeout bounds Close during shutdown.
const DrainTimeout = 5 * time.Second

type event struct {
	ctx                                       context.Context
	orgID, userID, action, resource, metadata string
}

// AsyncLogger queues events on a buffered channel and writes them from a single worker, so a slow or
// failing sink never blocks the request path. When the buffer is full the event is dropped and logged.
type AsyncLogger struct {
	next    AuditLogger
	ch      chan event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewAsyncLogger starts the worker. bufferSize <= 0 uses the default. Call Close to drain.
func NewAsyncLogger(next AuditLogger, bufferSize int) *AsyncLogger {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	a := &AsyncLogger{
		next: next,
		ch:   make(chan event, bufferSize),
		done: make(chan struct{}),
	}
	go a.run()
	return a
}

// LogEvent enqueues the event without blocking. The request context's values are kept but its
// cancellation is not, so events outlive the RPC that produced them.
func (a *AsyncLogger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(action)
		return
	}
	select {
	case a.ch <- event{context.WithoutCancel(ctx), orgID, userID, action, resource, metadata}:
	default:
		a.drop(action)
	}
}

func (a *AsyncLogger) drop(action string) {
	n := a.dropped.Add(1)
	log.Printf("audit: dropped event %s (total dropped %d)", action, n)
}

// Dropped returns how many events were discarded because the buffer was full or the logger closed.
func (a *AsyncLogger) Dropped() int64 {
	return a.dropped.Load()
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for ev := range a.ch {
		a.next.LogEvent(ev.ctx, ev.orgID, ev.userID, ev.action, ev.resource, ev.metadata)
	}
}

// Close stops accepting events and waits for queued ones to be written, or for ctx to expire.
func (a *AsyncLogger) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		log.Printf("audit: close: %d events still queued", len(a.ch))
		return ctx.Err()
	}
}
