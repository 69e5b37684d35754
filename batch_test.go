package rpckit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/rpckit/rpcerr"
)

// mockTransport is a minimal Transport whose Call delegates to a caller
// supplied function keyed by path.
type mockTransport struct {
	call func(ctx context.Context, path string, input any) (any, error)
}

func (m *mockTransport) Call(ctx context.Context, path string, input any) (any, error) {
	return m.call(ctx, path, input)
}
func (m *mockTransport) CallBatch(ctx context.Context, requests []BatchItem) (*BatchResponse, error) {
	return nil, ErrBatchUnsupported
}
func (m *mockTransport) Subscribe(ctx context.Context, path string, input any) (EventSequence, error) {
	return nil, errors.New("not implemented")
}

func newTestClient(call func(ctx context.Context, path string, input any) (any, error)) *Client {
	return New(&mockTransport{call: call}, WithDedupe(DedupeConfig{Enabled: false}))
}

// CallCollect must return a result vector in input order, regardless of
// which goroutine finishes first, and never fail the whole batch on a
// per-item error.
func TestCallCollectPreservesOrderAndIsolatesErrors(t *testing.T) {
	client := newTestClient(func(ctx context.Context, path string, input any) (any, error) {
		if path == "item.2" {
			return nil, errors.New(`{"code":"BOOM","message":"item 2 failed"}`)
		}
		return path + "-ok", nil
	})

	items := []BatchItem{
		{ID: "a", Path: "item.1"},
		{ID: "b", Path: "item.2"},
		{ID: "c", Path: "item.3"},
	}
	results := client.CallCollect(context.Background(), items, 2)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "item.1-ok", results[0].Data)
	assert.NoError(t, results[0].Err)

	assert.Equal(t, "b", results[1].ID)
	assert.Error(t, results[1].Err)

	assert.Equal(t, "c", results[2].ID)
	assert.Equal(t, "item.3-ok", results[2].Data)
	assert.NoError(t, results[2].Err)
}

// CallFailFast must surface the first failure and cancel the others — the
// second call blocks until its context is cancelled, so the test only
// returns once the first failure has cancelled it.
func TestCallFailFastSurfacesFirstError(t *testing.T) {
	var calls int64
	client := newTestClient(func(ctx context.Context, path string, input any) (any, error) {
		atomic.AddInt64(&calls, 1)
		if path == "item.1" {
			return nil, errors.New(`{"code":"BOOM","message":"fails fast"}`)
		}
		<-ctx.Done() // pending calls should observe cancellation
		return nil, ctx.Err()
	})

	items := []BatchItem{
		{ID: "a", Path: "item.1"},
		{ID: "b", Path: "item.2"},
	}
	_, err := client.CallFailFast(context.Background(), items, 2)
	require.Error(t, err)
}

// CallSequential must run items strictly one at a time in input order.
func TestCallSequentialPreservesOrderAndIsSerial(t *testing.T) {
	var order []string
	client := newTestClient(func(ctx context.Context, path string, input any) (any, error) {
		order = append(order, path)
		return path + "-ok", nil
	})

	items := []BatchItem{
		{ID: "a", Path: "item.1"},
		{ID: "b", Path: "item.2"},
		{ID: "c", Path: "item.3"},
	}
	results := client.CallSequential(context.Background(), items)

	require.Len(t, results, 3)
	assert.Equal(t, []string{"item.1", "item.2", "item.3"}, order)
	for i, item := range items {
		assert.Equal(t, item.ID, results[i].ID)
		assert.Equal(t, item.Path+"-ok", results[i].Data)
	}
}

// CallNative validates every path up front and aborts without dispatching
// anything on the first invalid one.
func TestCallNativeAbortsOnInvalidPath(t *testing.T) {
	client := newTestClient(func(ctx context.Context, path string, input any) (any, error) {
		t.Fatal("transport should not be called when a path fails validation")
		return nil, nil
	})

	items := []BatchItem{{ID: "a", Path: "1bad.path"}}
	_, err := client.CallNative(context.Background(), items)
	require.Error(t, err)
	var verr *rpcerr.ValidationError
	require.ErrorAs(t, err, &verr)
}
