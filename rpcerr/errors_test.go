package rpcerr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindPredicatesAreMutuallyExclusive(t *testing.T) {
	errs := []error{
		&CallError{CodeVal: "INTERNAL_ERROR", Message: "boom"},
		&TimeoutError{Path: "a.b", TimeoutMs: 100},
		&CancelledError{Path: "a.b"},
		&ValidationError{Path: "a.b", Issues: []ValidationIssue{{Path: "id", Message: "required", Code: "required"}}},
		&NetworkError{Path: "a.b"},
	}

	for _, err := range errs {
		count := 0
		if _, ok := IsCallError(err); ok {
			count++
		}
		if _, ok := IsTimeoutError(err); ok {
			count++
		}
		if _, ok := IsCancelledError(err); ok {
			count++
		}
		if _, ok := IsValidationError(err); ok {
			count++
		}
		if _, ok := IsNetworkError(err); ok {
			count++
		}
		assert.Equal(t, 1, count, "exactly one kind predicate must hold for %v", err)
	}
}

func TestRoundTripPreservesKindAndKeyFields(t *testing.T) {
	cases := []error{
		&CallError{CodeVal: "BAD_REQUEST", Message: "nope", Details: map[string]any{"x": "y"}},
		&TimeoutError{Path: "user.get", TimeoutMs: 5000},
		&CancelledError{Path: "user.get", Reason: "user cancelled"},
		&ValidationError{Path: "user.get", Issues: []ValidationIssue{{Path: "id", Message: "required", Code: "required"}}},
		&NetworkError{Path: "user.get"},
	}

	for _, original := range cases {
		shape := ToShape(original)
		reconstructed := FromShape(shape)

		orig := original.(Error)
		rec := reconstructed.(Error)
		require.Equal(t, orig.Kind(), rec.Kind())
		require.Equal(t, orig.Code(), rec.Code())

		switch o := original.(type) {
		case *TimeoutError:
			r := reconstructed.(*TimeoutError)
			assert.Equal(t, o.TimeoutMs, r.TimeoutMs)
		case *ValidationError:
			r := reconstructed.(*ValidationError)
			assert.Equal(t, o.Issues, r.Issues)
		case *CallError:
			r := reconstructed.(*CallError)
			assert.Equal(t, o.Message, r.Message)
		}
	}
}

func TestRetryabilityTable(t *testing.T) {
	assert.True(t, Retryable(&CallError{CodeVal: "INTERNAL_ERROR"}))
	assert.True(t, Retryable(&TimeoutError{}))
	assert.True(t, Retryable(&NetworkError{}))
	assert.False(t, Retryable(&ValidationError{}))
	assert.False(t, Retryable(&CancelledError{}))
	assert.False(t, Retryable(&CallError{CodeVal: "UNAUTHORIZED"}))
	assert.False(t, Retryable(&CallError{CodeVal: "NOT_FOUND"}))
}

func TestRateLimitHelpers(t *testing.T) {
	err := &CallError{CodeVal: CodeRateLimited, Message: "slow down", Details: map[string]any{"retry_after_ms": int64(5000)}}
	assert.True(t, IsRateLimitError(err))
	ms, ok := GetRateLimitRetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, int64(5000), ms)

	assert.False(t, IsRateLimitError(&CallError{CodeVal: "INTERNAL_ERROR"}))
}
