package subscription

import (
	"context"
	"sync"
)

// Handle is the consumer-facing view of one registered subscription
// consumer. Next is the only blocking call; Cancel is idempotent and safe
// to call from any goroutine, including concurrently with a pending Next.
type Handle struct {
	path   string
	engine *Engine
	id     int
	queue  *boundedQueue

	once      sync.Once
	cancelled bool
	mu        sync.Mutex
}

// Path returns the subscription's procedure path.
func (h *Handle) Path() string { return h.path }

// State returns the engine's current lifecycle snapshot.
func (h *Handle) State() State { return h.engine.State() }

// Next blocks until the next Event, ctx is done, or the subscription has
// been closed (ErrClosed, after the shutdown sentinel is drained).
func (h *Handle) Next(ctx context.Context) (Event, error) {
	item, err := h.queue.Pop(ctx)
	if err != nil {
		return Event{}, err
	}
	if item.Shutdown {
		return Event{}, ErrClosed
	}
	return item.Event, nil
}

// Cancel unregisters this consumer. If it was the last consumer on the
// engine, the engine itself is torn down; the supervisor detaches the
// engine's pump once it actually reaches Closed (see Manager.Start).
// Idempotent.
func (h *Handle) Cancel() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		h.engine.RemoveConsumer(h.id)
	})
	return nil
}
