// Package cacheadapter exposes a procedure path's query/mutation/infinite
// option builders and cache-key derivation for an external reactive cache
// (the Go analogue of a React Query-style adapter). It holds no cache
// state itself — every function here is pure, deriving keys and closures
// from a Client and a path.
package cacheadapter

import (
	"context"

	"github.com/tomtom215/rpckit"
)

// QueryOptions is what a reactive cache needs to run and key a query.
type QueryOptions struct {
	QueryKey []any
	QueryFn  func(ctx context.Context) (any, error)
	Enabled  bool
}

// QueryOptionsParams configures Query.
type QueryOptionsParams struct {
	Input   any
	Enabled *bool // nil means enabled defaults to true
}

// Query builds QueryOptions for path against client.
func Query(client *rpckit.Client, path string, params QueryOptionsParams) QueryOptions {
	enabled := true
	if params.Enabled != nil {
		enabled = *params.Enabled
	}
	return QueryOptions{
		QueryKey: Key(path, params.Input),
		QueryFn: func(ctx context.Context) (any, error) {
			return client.Query(ctx, path, params.Input)
		},
		Enabled: enabled,
	}
}

// MutationOptions is what a reactive cache needs to run and key a mutation.
type MutationOptions struct {
	MutationKey []any
	MutationFn  func(ctx context.Context, input any) (any, error)
}

// Mutation builds MutationOptions for path against client.
func Mutation(client *rpckit.Client, path string) MutationOptions {
	return MutationOptions{
		MutationKey: Key(path, nil),
		MutationFn: func(ctx context.Context, input any) (any, error) {
			return client.Mutate(ctx, path, input)
		},
	}
}

// PageParam is one page's cursor/offset, opaque to the adapter.
type PageParam any

// InfiniteOptionsParams configures Infinite.
type InfiniteOptionsParams struct {
	InputFor            func(pageParam PageParam) any
	InitialPageParam    PageParam
	GetNextPageParam    func(lastPage any, allPages []any) (PageParam, bool)
	GetPreviousPageParam func(firstPage any, allPages []any) (PageParam, bool)
	Enabled             *bool
}

// InfiniteOptions is what a reactive cache needs to run a paginated query.
type InfiniteOptions struct {
	QueryKey             []any
	QueryFn              func(ctx context.Context, pageParam PageParam) (any, error)
	InitialPageParam     PageParam
	GetNextPageParam     func(lastPage any, allPages []any) (PageParam, bool)
	GetPreviousPageParam func(firstPage any, allPages []any) (PageParam, bool)
	Enabled              bool
}

// Infinite builds InfiniteOptions for path against client.
func Infinite(client *rpckit.Client, path string, params InfiniteOptionsParams) InfiniteOptions {
	enabled := true
	if params.Enabled != nil {
		enabled = *params.Enabled
	}
	return InfiniteOptions{
		QueryKey: InfiniteKey(path, nil),
		QueryFn: func(ctx context.Context, pageParam PageParam) (any, error) {
			return client.Query(ctx, path, params.InputFor(pageParam))
		},
		InitialPageParam:     params.InitialPageParam,
		GetNextPageParam:     params.GetNextPageParam,
		GetPreviousPageParam: params.GetPreviousPageParam,
		Enabled:              enabled,
	}
}

// Key returns the cache key for path and an optional input: the dotted
// path's segments, plus input appended when non-nil.
func Key(path string, input any) []any {
	key := pathSegments(path)
	if input != nil {
		key = append(key, input)
	}
	return key
}

// InfiniteKey inserts the literal segment "infinite" between the path
// segments and input, so infinite-query entries never collide with a plain
// query over the same path/input.
func InfiniteKey(path string, input any) []any {
	segs := pathSegments(path)
	key := make([]any, 0, len(segs)+2)
	key = append(key, segs...)
	key = append(key, "infinite")
	if input != nil {
		key = append(key, input)
	}
	return key
}

func pathSegments(path string) []any {
	segs := []any{}
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	return segs
}
