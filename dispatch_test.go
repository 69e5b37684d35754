package rpckit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/rpckit/rpcerr"
)

// A dispatch-level timeout must surface as *rpcerr.TimeoutError, not a
// generic context-deadline error, even though the transport call itself
// just observes context.DeadlineExceeded.
func TestDispatchTimeoutReclassifiesAsTimeoutError(t *testing.T) {
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, WithTimeout(20*time.Millisecond), WithDedupe(DedupeConfig{Enabled: false}))

	_, err := client.Query(context.Background(), "slow.call", nil)
	require.Error(t, err)
	var timeoutErr *rpcerr.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "slow.call", timeoutErr.Path)
}

// A caller-cancelled parent context must surface as *rpcerr.CancelledError.
func TestDispatchCallerCancelSurfacesAsCancelledError(t *testing.T) {
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}, WithDedupe(DedupeConfig{Enabled: false}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := client.Query(ctx, "slow.call", nil)
	require.Error(t, err)
	var cancelledErr *rpcerr.CancelledError
	require.ErrorAs(t, err, &cancelledErr)
}

// A raw transport error carrying a {code,message,details} JSON envelope
// must classify into a *rpcerr.CallError with those fields, including a
// rate-limit error's retry_after_ms detail.
func TestDispatchClassifiesRateLimitEnvelope(t *testing.T) {
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			return nil, errors.New(`{"code":"RATE_LIMITED","message":"slow down","details":{"retry_after_ms":5000}}`)
		},
	}, WithDedupe(DedupeConfig{Enabled: false}))

	_, err := client.Query(context.Background(), "limited.call", nil)
	require.Error(t, err)
	assert.True(t, rpcerr.IsRateLimitError(err))
	ms, ok := rpcerr.GetRateLimitRetryAfter(err)
	require.True(t, ok)
	assert.EqualValues(t, 5000, ms)
}

// The client's auto-wired retry interceptor must retry a retryable failure
// up to its configured budget and eventually succeed once the transport
// stops failing.
func TestDispatchRetriesRetryableFailures(t *testing.T) {
	var attempts int
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			attempts++
			if attempts <= 2 {
				return nil, errors.New(`{"code":"INTERNAL_ERROR","message":"transient"}`)
			}
			return "ok", nil
		},
	},
		WithDedupe(DedupeConfig{Enabled: false}),
		WithRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}),
	)

	result, err := client.Query(context.Background(), "flaky.call", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

// A non-retryable failure code must surface immediately with no retries at
// all, regardless of the retry budget configured.
func TestDispatchDoesNotRetryNonRetryableFailures(t *testing.T) {
	var attempts int
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			attempts++
			return nil, errors.New(`{"code":"BAD_REQUEST","message":"nope"}`)
		},
	},
		WithDedupe(DedupeConfig{Enabled: false}),
		WithRetry(RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond}),
	)

	_, err := client.Query(context.Background(), "flaky.call", nil)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

// A custom RetryableCodes list on Config.Retry must be honored by the
// client's auto-wired retry interceptor instead of the default table.
func TestDispatchHonorsCustomRetryableCodes(t *testing.T) {
	var attempts int
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New(`{"code":"WEIRD_CODE","message":"retry me"}`)
			}
			return "ok", nil
		},
	},
		WithDedupe(DedupeConfig{Enabled: false}),
		WithRetry(RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, RetryableCodes: []string{"WEIRD_CODE"}}),
	)

	result, err := client.Query(context.Background(), "flaky.call", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}

// A path registered via WithSubscriptionPaths must be rejected by Query and
// Mutate — it can only be dispatched through Subscribe.
func TestDispatchRejectsQueryOnRegisteredSubscriptionPath(t *testing.T) {
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			t.Fatal("transport should not be called for a registered subscription path")
			return nil, nil
		},
	},
		WithDedupe(DedupeConfig{Enabled: false}),
		WithSubscriptionPaths("feed.events"),
	)

	_, err := client.Query(context.Background(), "feed.events", nil)
	require.Error(t, err)
	var verr *rpcerr.ValidationError
	require.ErrorAs(t, err, &verr)
}

// ValidateInterceptor must be auto-wired from WithValidation and reject a
// struct failing its validator tags before the transport is ever called.
func TestDispatchValidatesInputWhenEnabled(t *testing.T) {
	type input struct {
		Name string `validate:"required"`
	}
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			t.Fatal("transport should not be called for invalid input")
			return nil, nil
		},
	},
		WithDedupe(DedupeConfig{Enabled: false}),
		WithValidation(true, false),
	)

	_, err := client.Query(context.Background(), "user.create", input{})
	require.Error(t, err)
	var verr *rpcerr.ValidationError
	require.ErrorAs(t, err, &verr)
}

// ValidateInterceptor must also validate the result when ValidateOutput is
// enabled, rejecting a response that fails its own validator tags.
func TestDispatchValidatesOutputWhenEnabled(t *testing.T) {
	type output struct {
		Message string `validate:"required"`
	}
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			return output{}, nil
		},
	},
		WithDedupe(DedupeConfig{Enabled: false}),
		WithValidation(false, true),
	)

	_, err := client.Query(context.Background(), "user.get", nil)
	require.Error(t, err)
	var verr *rpcerr.ValidationError
	require.ErrorAs(t, err, &verr)
}

// Concurrent dispatches sharing a (path, input) key must collapse into one
// in-flight transport call when dedup is enabled.
func TestDispatchDedupeCollapsesConcurrentIdenticalCalls(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	client := New(&mockTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			calls++
			<-release
			return "ok", nil
		},
	}, WithDedupe(DedupeConfig{Enabled: true, Scope: DedupeScopeClient}))

	done := make(chan any, 2)
	for i := 0; i < 2; i++ {
		go func() {
			result, err := client.Query(context.Background(), "shared.call", map[string]any{"x": 1})
			require.NoError(t, err)
			done <- result
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		assert.Equal(t, "ok", <-done)
	}
	assert.EqualValues(t, 1, calls)
}
