package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedQueuePushPopOrder(t *testing.T) {
	q := newBoundedQueue(10)
	q.Push(QueueItem{Event: Event{Payload: 1}})
	q.Push(QueueItem{Event: Event{Payload: 2}})
	q.Push(QueueItem{Event: Event{Payload: 3}})

	ctx := context.Background()
	for _, want := range []int{1, 2, 3} {
		item, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, item.Event.Payload)
	}
}

// Pushing past capacity must evict the oldest item first, and each eviction
// must be counted in Drops.
func TestBoundedQueueDropOldestOnOverflow(t *testing.T) {
	q := newBoundedQueue(3)
	for i := 1; i <= 5; i++ {
		q.Push(QueueItem{Event: Event{Payload: i}})
	}
	assert.Equal(t, int64(2), q.Drops())

	ctx := context.Background()
	for _, want := range []int{3, 4, 5} {
		item, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, item.Event.Payload)
	}
}

// A blocked Pop must wake as soon as the shutdown sentinel is pushed, and
// report it distinctly from a domain event.
func TestBoundedQueueShutdownWakesBlockedPop(t *testing.T) {
	q := newBoundedQueue(10)

	type popResult struct {
		item QueueItem
		err  error
	}
	resultCh := make(chan popResult, 1)
	go func() {
		item, err := q.Pop(context.Background())
		resultCh <- popResult{item: item, err: err}
	}()

	time.Sleep(10 * time.Millisecond) // let Pop block first
	q.Push(QueueItem{Shutdown: true})

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.True(t, r.item.Shutdown)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on shutdown sentinel")
	}
}

// Pop must return the context error if cancelled before any item arrives.
func TestBoundedQueuePopRespectsContextCancellation(t *testing.T) {
	q := newBoundedQueue(10)
	ctx, cancel := context.WithCancel(context.Background())

	resultCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		resultCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-resultCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on context cancellation")
	}
}

// Push after Close must be a silent no-op; it must not panic or queue the
// item.
func TestBoundedQueuePushAfterCloseIsNoop(t *testing.T) {
	q := newBoundedQueue(10)
	q.Close()
	q.Push(QueueItem{Event: Event{Payload: "dropped"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
