package rpckit

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/tomtom215/rpckit/rpcerr"
)

// Transport is the only collaborator the core requires be supplied: a
// single call, an optional native batch, and a subscribe that returns a
// lazy, finite, non-restartable EventSequence. Transports are
// transport-agnostic by design — HTTP, WebSocket, in-memory, or otherwise.
type Transport interface {
	Call(ctx context.Context, path string, input any) (any, error)
	// CallBatch performs a single round-trip for many logical calls.
	// Transports without native batch support return ErrBatchUnsupported so
	// callers fall back to a parallel or sequential batch strategy.
	CallBatch(ctx context.Context, requests []BatchItem) (*BatchResponse, error)
	Subscribe(ctx context.Context, path string, input any) (EventSequence, error)
}

// ErrBatchUnsupported signals that a Transport has no native batch support.
var ErrBatchUnsupported = errors.New("rpckit: transport does not support native batch")

// EventKind discriminates the three shapes a subscription event can take:
// a data payload, a terminal error, or natural completion.
type EventKind int

const (
	EventData EventKind = iota
	EventError
	EventCompleted
)

// Event is one item a subscription's EventSequence yields.
type Event struct {
	Kind    EventKind
	Payload any
	Err     error
}

// EventSequence is both iterable (Next yields items until the stream is
// exhausted) and cancellable; Cancel must release host-side resources and
// be safe to call more than once.
type EventSequence interface {
	// Next blocks until the next item is available, the sequence ends
	// (returns an Event{Kind: EventCompleted} exactly once), or ctx is done.
	Next(ctx context.Context) (Event, error)
	Cancel() error
}

// wireErrorShape mirrors rpcerr.Shape's wire-visible fields for decoding a
// raw transport error that arrives as JSON.
type wireErrorShape struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// classify turns a raw transport-level failure into the typed error
// taxonomy: no raw transport error escapes the core.
func classify(err error, path string) error {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(rpcerr.Error); ok {
		return rerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &rpcerr.TimeoutError{Path: path}
	}
	if errors.Is(err, context.Canceled) {
		return &rpcerr.CancelledError{Path: path}
	}

	msg := err.Error()
	var shape wireErrorShape
	if json.Unmarshal([]byte(msg), &shape) == nil && shape.Code != "" {
		return &rpcerr.CallError{CodeVal: shape.Code, Message: shape.Message, Details: shape.Details}
	}
	return &rpcerr.CallError{CodeVal: rpcerr.CodeUnknown, Message: msg}
}

// BatchItem is one logical call inside a batch request.
type BatchItem struct {
	ID    string
	Path  string
	Input any
}

// BatchResponse is the native-batch wire shape: {results: [{id, data?, error?}]}.
type BatchResponse struct {
	Results []BatchResult
}

// BatchResult is one item's outcome: exactly one of Data/Err is meaningful.
type BatchResult struct {
	ID   string
	Data any
	Err  error
}
