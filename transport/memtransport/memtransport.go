// Package memtransport is an in-process Transport for tests and demos: unary
// calls are served by registered handler functions, and subscriptions are
// backed by watermill's in-memory gochannel pub/sub so Subscribe/publish
// exercises the same topic-based fan-out a real broker-backed transport
// would use.
package memtransport

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/rpckit"
)

// CallHandler serves one unary path.
type CallHandler func(ctx context.Context, input any) (any, error)

// wireEvent is the JSON envelope published on a subscription's topic.
type wireEvent struct {
	Kind    string `json:"kind"` // "data" | "error" | "completed"
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Transport implements rpckit.Transport entirely in-process.
type Transport struct {
	mu       sync.RWMutex
	handlers map[string]CallHandler
	batch    func(ctx context.Context, requests []rpckit.BatchItem) (*rpckit.BatchResponse, error)
	pubsub   *gochannel.GoChannel
	logger   watermill.LoggerAdapter
}

// New builds an empty Transport. Register handlers with RegisterCall /
// RegisterBatch, then drive subscriptions by calling PublishData,
// PublishError and PublishCompleted.
func New() *Transport {
	logger := watermill.NopLogger{}
	return &Transport{
		handlers: make(map[string]CallHandler),
		pubsub:   gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger),
		logger:   logger,
	}
}

// RegisterCall binds path to a handler invoked for Call and for batch
// requests that fall back to the parallel/sequential strategy.
func (t *Transport) RegisterCall(path string, h CallHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[path] = h
}

// RegisterBatch installs a native batch handler; without one, CallBatch
// returns rpckit.ErrBatchUnsupported so callers fall back.
func (t *Transport) RegisterBatch(h func(ctx context.Context, requests []rpckit.BatchItem) (*rpckit.BatchResponse, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batch = h
}

func (t *Transport) Call(ctx context.Context, path string, input any) (any, error) {
	t.mu.RLock()
	h, ok := t.handlers[path]
	t.mu.RUnlock()
	if !ok {
		return nil, errors.New(`{"code":"NOT_FOUND","message":"no handler registered for ` + path + `"}`)
	}
	return h(ctx, input)
}

func (t *Transport) CallBatch(ctx context.Context, requests []rpckit.BatchItem) (*rpckit.BatchResponse, error) {
	t.mu.RLock()
	b := t.batch
	t.mu.RUnlock()
	if b == nil {
		return nil, rpckit.ErrBatchUnsupported
	}
	return b(ctx, requests)
}

// PublishData pushes one data event onto path's topic.
func (t *Transport) PublishData(path string, payload any) error {
	return t.publish(path, wireEvent{Kind: "data", Payload: payload})
}

// PublishError pushes a terminal error event onto path's topic.
func (t *Transport) PublishError(path string, err error) error {
	return t.publish(path, wireEvent{Kind: "error", Error: err.Error()})
}

// PublishCompleted pushes a natural-completion event onto path's topic.
func (t *Transport) PublishCompleted(path string) error {
	return t.publish(path, wireEvent{Kind: "completed"})
}

func (t *Transport) publish(path string, ev wireEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return t.pubsub.Publish(path, message.NewMessage(watermill.NewUUID(), body))
}

func (t *Transport) Subscribe(ctx context.Context, path string, input any) (rpckit.EventSequence, error) {
	messages, err := t.pubsub.Subscribe(ctx, path)
	if err != nil {
		return nil, err
	}
	return &eventSequence{messages: messages}, nil
}

type eventSequence struct {
	messages <-chan *message.Message
}

func (s *eventSequence) Next(ctx context.Context) (rpckit.Event, error) {
	select {
	case <-ctx.Done():
		return rpckit.Event{}, ctx.Err()
	case msg, ok := <-s.messages:
		if !ok {
			return rpckit.Event{Kind: rpckit.EventCompleted}, nil
		}
		msg.Ack()
		var ev wireEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return rpckit.Event{}, err
		}
		switch ev.Kind {
		case "error":
			return rpckit.Event{Kind: rpckit.EventError, Err: errors.New(ev.Error)}, nil
		case "completed":
			return rpckit.Event{Kind: rpckit.EventCompleted}, nil
		default:
			return rpckit.Event{Kind: rpckit.EventData, Payload: ev.Payload}, nil
		}
	}
}

func (s *eventSequence) Cancel() error {
	return nil
}
