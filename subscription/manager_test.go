package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Manager.Start must deliver events through the returned Handle, and
// Handle.Cancel must close the consumer (Next then returns ErrClosed) and be
// idempotent.
func TestManagerStartDeliversEventsAndCancelTearsDown(t *testing.T) {
	mgr := NewManager(ManagerConfig{
		AutoReconnect:  true,
		MaxReconnects:  1,
		ReconnectDelay: time.Millisecond,
	})

	resubscribe := func(ctx context.Context) (EventSequence, error) {
		return &scriptedSequence{steps: []struct {
			ev  Event
			err error
		}{
			{ev: Event{Kind: EventData, Payload: "hello"}},
		}}, nil
	}

	handle, err := mgr.Start(context.Background(), "demo.events", resubscribe)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, err := handle.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", ev.Payload)

	require.NoError(t, handle.Cancel())

	_, err = handle.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)

	// Cancel must be idempotent.
	require.NoError(t, handle.Cancel())
}

// A caller-supplied ctx being cancelled must detach that consumer, and
// since it's the only one, cancel the engine out of its reconnect backoff
// sleep rather than waiting out the full delay.
func TestManagerStartDetachesOnCallerContextCancel(t *testing.T) {
	mgr := NewManager(ManagerConfig{
		AutoReconnect:  true,
		MaxReconnects:  100,
		ReconnectDelay: 5 * time.Second,
	})

	resubscribe := func(ctx context.Context) (EventSequence, error) {
		return nil, errors.New("connect refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := mgr.Start(ctx, "demo.events", resubscribe)
	require.NoError(t, err)

	cancel()

	select {
	case <-handle.engine.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not close promptly after caller context cancellation")
	}
}
