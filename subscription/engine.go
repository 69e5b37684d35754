package subscription

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/rpckit/backoff"
	"github.com/tomtom215/rpckit/rpcerr"
)

// Engine owns one subscription's lifecycle: connect, broadcast to N
// consumers, reconnect with backoff on transport failure, and deterministic
// shutdown. One Engine per client-visible subscription; concurrency-safe
// via the atomic Cell plus a mutex guarding the consumer set (composite
// consumer-set mutations — register/unregister/broadcast — are not
// expressible as a single CAS, so they take the mutex; the Cell itself
// stays lock-free).
type Engine struct {
	path           string
	resubscribe    Resubscribe
	autoReconnect  bool
	maxReconnects  int
	reconnectDelay time.Duration
	bufferCap      int
	metrics        Metrics

	// reconnectLimiter paces reconnect attempts across every subscription
	// sharing a Manager, on top of each engine's own exponential backoff —
	// a client-wide ceiling so many subscriptions failing together can't
	// all retry in the same instant. Nil disables the extra pacing.
	reconnectLimiter *rate.Limiter

	state *Cell

	mu             sync.Mutex
	consumers      map[int]*boundedQueue
	nextConsumerID int

	ctx       context.Context
	cancel    context.CancelFunc
	closedCh  chan struct{}
	closeOnce sync.Once
}

// EngineConfig configures a new Engine.
type EngineConfig struct {
	Path           string
	Resubscribe    Resubscribe
	AutoReconnect  bool
	MaxReconnects  int
	ReconnectDelay time.Duration
	BufferCap      int
	Metrics        Metrics

	// ReconnectLimiter is shared across every Engine a Manager starts; see
	// the Engine.reconnectLimiter field comment.
	ReconnectLimiter *rate.Limiter
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		path:             cfg.Path,
		resubscribe:      cfg.Resubscribe,
		autoReconnect:    cfg.AutoReconnect,
		maxReconnects:    cfg.MaxReconnects,
		reconnectDelay:   cfg.ReconnectDelay,
		bufferCap:        cfg.BufferCap,
		metrics:          cfg.Metrics,
		reconnectLimiter: cfg.ReconnectLimiter,
		state:            NewCell(),
		consumers:        make(map[int]*boundedQueue),
		closedCh:         make(chan struct{}),
	}
}

// State returns a snapshot of the engine's current lifecycle state.
func (e *Engine) State() State { return e.state.Load() }

// AddConsumer registers a new consumer and returns its id and queue. A
// late-joining consumer starts at the current position — no replay by
// default; the buffer-cap knob exists but default behavior is live-only.
func (e *Engine) AddConsumer() (int, *boundedQueue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextConsumerID
	e.nextConsumerID++
	q := newBoundedQueue(e.bufferCap)
	e.consumers[id] = q
	e.state.IncPendingConsumers()
	return id, q
}

// RemoveConsumer unregisters a consumer, waking any Next() call blocked on
// its queue with the shutdown sentinel. Removing the last remaining
// consumer cancels the whole engine, regardless of which lifecycle state
// it's currently in.
func (e *Engine) RemoveConsumer(id int) {
	e.mu.Lock()
	q, ok := e.consumers[id]
	if ok {
		delete(e.consumers, id)
		q.Push(QueueItem{Shutdown: true})
		q.Close()
	}
	remaining := len(e.consumers)
	e.mu.Unlock()

	if ok {
		e.state.DecPendingConsumers()
	}
	if remaining == 0 {
		e.Cancel()
	}
}

// Cancel idempotently tears the engine down: invokes the transport
// handle's release (via the in-flight resubscribe's EventSequence, which
// Run itself owns and cancels), transitions to Closing, and offers exactly
// one shutdown sentinel per registered consumer.
func (e *Engine) Cancel() {
	if e.cancel != nil {
		e.cancel()
	}
}

// Closed returns a channel closed once the engine has fully shut down.
func (e *Engine) Closed() <-chan struct{} { return e.closedCh }

// Run drives the engine's lifecycle until ctx is cancelled, the stream
// completes naturally, or reconnection is exhausted/disabled. It is meant
// to run in its own goroutine (see manager.go's suture wiring).
func (e *Engine) Run(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	defer e.closeOnce.Do(e.shutdown)

	e.state.SetLifecycle(StateConnecting)

	for {
		seq, err := e.resubscribe(e.ctx)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			if !e.onFailure(err, "connect_error") {
				return
			}
			continue
		}

		e.state.SetLifecycle(StateActive)
		if !e.pump(seq) {
			return
		}
		// pump returned true: reconnect scheduled by onFailure, loop again.
	}
}

// pump consumes one connected EventSequence until it ends, errors, or ctx
// is cancelled. Returns true if the caller should reconnect (resubscribe
// again), false if the engine is done (terminal, Run should return).
func (e *Engine) pump(seq EventSequence) bool {
	firstEventSinceConnect := true
	for {
		ev, err := seq.Next(e.ctx)
		if err != nil {
			_ = seq.Cancel()
			if e.ctx.Err() != nil {
				return false
			}
			return e.onFailure(err, "stream_error")
		}

		if firstEventSinceConnect {
			e.state.ResetReconnectAttempts()
			firstEventSinceConnect = false
		}

		switch ev.Kind {
		case EventCompleted:
			e.broadcast(Event{Kind: EventCompleted})
			_ = seq.Cancel()
			return false
		case EventError:
			_ = seq.Cancel()
			return e.onFailure(ev.Err, "stream_error_event")
		default:
			if id, ok := ev.Payload.(interface{ EventID() string }); ok {
				e.state.SetLastEventID(id.EventID())
			}
			e.broadcast(ev)
		}
	}
}

// onFailure implements the reconnection decision tree. Returns true if a
// reconnect was scheduled (caller should retry resubscribe after the
// backoff sleep already taken here), false if terminal.
func (e *Engine) onFailure(err error, reason string) bool {
	if !e.autoReconnect {
		e.broadcast(Event{Kind: EventError, Err: err})
		return false
	}

	attempts := e.state.Load().ReconnectAttempts
	if attempts >= e.maxReconnects {
		e.broadcast(Event{Kind: EventError, Err: maxReconnectsExceeded(e.path, attempts, e.maxReconnects)})
		return false
	}

	attempts = e.state.IncReconnectAttempts()
	e.state.SetLifecycle(StateReconnecting)
	if e.metrics != nil {
		e.metrics.IncReconnect(e.path, reason)
	}

	policy := backoff.Policy{Strategy: backoff.Exponential, Base: e.reconnectDelay, Jitter: true}
	delay := policy.Delay(attempts - 1) // delay = reconnectDelay * 2^(attempts-1)

	e.state.SetLifecycle(StateWaiting)
	select {
	case <-e.ctx.Done():
		return false
	case <-time.After(delay):
	}

	if e.reconnectLimiter != nil {
		if err := e.reconnectLimiter.Wait(e.ctx); err != nil {
			return false
		}
	}

	e.state.SetLifecycle(StateConnecting)
	return true
}

func maxReconnectsExceeded(path string, attempts, max int) *rpcerr.CallError {
	return &rpcerr.CallError{
		CodeVal: MaxReconnectsExceededCode,
		Message: "reconnect attempts exhausted",
		Details: map[string]any{
			"attempts":      attempts,
			"maxReconnects": max,
			"path":          path,
		},
	}
}

// broadcast fans ev out to every currently-registered consumer's queue.
func (e *Engine) broadcast(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, q := range e.consumers {
		q.Push(QueueItem{Event: ev})
	}
}

// shutdown transitions to Closing/Closed and offers exactly one shutdown
// sentinel per registered consumer so every pending Next() wakes and
// terminates, then releases the queues.
func (e *Engine) shutdown() {
	e.state.SetLifecycle(StateClosing)
	wasCompleted := e.state.SetCompleted()
	_ = wasCompleted

	e.mu.Lock()
	consumers := e.consumers
	e.consumers = make(map[int]*boundedQueue)
	e.mu.Unlock()

	for _, q := range consumers {
		q.Push(QueueItem{Shutdown: true})
		q.Close()
	}

	e.state.SetLifecycle(StateClosed)
	close(e.closedCh)
}
