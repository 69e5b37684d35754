package cacheadapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/rpckit"
)

type stubTransport struct {
	call func(ctx context.Context, path string, input any) (any, error)
}

func (s *stubTransport) Call(ctx context.Context, path string, input any) (any, error) {
	return s.call(ctx, path, input)
}
func (s *stubTransport) CallBatch(ctx context.Context, requests []rpckit.BatchItem) (*rpckit.BatchResponse, error) {
	return nil, rpckit.ErrBatchUnsupported
}
func (s *stubTransport) Subscribe(ctx context.Context, path string, input any) (rpckit.EventSequence, error) {
	return nil, errors.New("not implemented")
}

// Query's QueryFn must delegate to Client.Query against the exact path and
// input it was built with, and its QueryKey must be the dotted path's
// segments plus the input.
func TestQueryBuildsKeyAndDelegatesToClient(t *testing.T) {
	var gotPath string
	var gotInput any
	client := rpckit.New(&stubTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			gotPath, gotInput = path, input
			return "result", nil
		},
	}, rpckit.WithDedupe(rpckit.DedupeConfig{Enabled: false}))

	opts := Query(client, "user.get", QueryOptionsParams{Input: map[string]any{"id": 7}})
	assert.Equal(t, []any{"user", "get", map[string]any{"id": 7}}, opts.QueryKey)
	assert.True(t, opts.Enabled)

	result, err := opts.QueryFn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, "user.get", gotPath)
	assert.Equal(t, map[string]any{"id": 7}, gotInput)
}

// Enabled defaults to true when unset, but an explicit false must propagate.
func TestQueryEnabledDefaultsTrueButRespectsOverride(t *testing.T) {
	client := rpckit.New(&stubTransport{
		call: func(ctx context.Context, path string, input any) (any, error) { return nil, nil },
	}, rpckit.WithDedupe(rpckit.DedupeConfig{Enabled: false}))

	disabled := false
	opts := Query(client, "user.get", QueryOptionsParams{Enabled: &disabled})
	assert.False(t, opts.Enabled)
}

// Mutation's MutationFn must delegate to Client.Mutate with the input
// supplied at call time, not at build time.
func TestMutationDelegatesToClientMutate(t *testing.T) {
	var gotInput any
	client := rpckit.New(&stubTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			gotInput = input
			return "renamed", nil
		},
	}, rpckit.WithDedupe(rpckit.DedupeConfig{Enabled: false}))

	opts := Mutation(client, "user.rename")
	assert.Equal(t, []any{"user", "rename"}, opts.MutationKey)

	result, err := opts.MutationFn(context.Background(), map[string]any{"name": "new"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", result)
	assert.Equal(t, map[string]any{"name": "new"}, gotInput)
}

// Infinite's QueryFn must derive the call input from InputFor(pageParam),
// and InfiniteKey must insert "infinite" between the path segments and any
// input so it never collides with a plain Query key over the same path.
func TestInfiniteDerivesInputFromPageParamAndKeyDoesNotCollide(t *testing.T) {
	var gotInput any
	client := rpckit.New(&stubTransport{
		call: func(ctx context.Context, path string, input any) (any, error) {
			gotInput = input
			return []string{"a", "b"}, nil
		},
	}, rpckit.WithDedupe(rpckit.DedupeConfig{Enabled: false}))

	opts := Infinite(client, "feed.list", InfiniteOptionsParams{
		InputFor: func(p PageParam) any { return map[string]any{"cursor": p} },
	})
	assert.Equal(t, []any{"feed", "list", "infinite"}, opts.QueryKey)

	_, err := opts.QueryFn(context.Background(), "cursor-2")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"cursor": "cursor-2"}, gotInput)

	plainKey := Key("feed.list", nil)
	assert.NotEqual(t, opts.QueryKey, plainKey)
}
