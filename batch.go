package rpckit

import (
	"context"
	"sync"

	"github.com/tomtom215/rpckit/rpcpath"
)

// DefaultBatchConcurrency is the parallel-batch fan-out cap when the caller
// doesn't configure one.
const DefaultBatchConcurrency = 5

// CallNative performs a single transport round-trip for items. All paths
// are validated first; on validation failure the batch aborts without
// sending anything. The per-item outcome ({id, data} or {id, error}) is
// independent of the others — only a whole-batch transport error fails the
// call itself.
func (c *Client) CallNative(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	for _, item := range items {
		if _, err := rpcpath.Validate(item.Path); err != nil {
			return nil, err
		}
	}
	resp, err := c.transport.CallBatch(ctx, items)
	if err != nil {
		return nil, classify(err, "")
	}
	paths := make(map[string]string, len(items))
	for _, item := range items {
		paths[item.ID] = item.Path
	}
	for i := range resp.Results {
		resp.Results[i].Err = classify(resp.Results[i].Err, paths[resp.Results[i].ID])
	}
	return resp.Results, nil
}

// CallCollect fans items out with at most concurrency underlying calls in
// flight (0 means DefaultBatchConcurrency). It always returns a result
// vector the same length as items; per-item success or typed error is
// recorded, and it never fails the whole batch on an individual error.
func (c *Client) CallCollect(ctx context.Context, items []BatchItem, concurrency int) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	results := make([]BatchResult, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item BatchItem) {
			defer wg.Done()
			defer func() { <-sem }()
			data, err := c.dispatch(ctx, item.Path, item.Input, KindQuery)
			results[i] = BatchResult{ID: item.ID, Data: data, Err: err}
		}(i, item)
	}
	wg.Wait()
	return results
}

// CallFailFast fans items out with at most concurrency in flight; the
// first failure cancels outstanding calls and surfaces the error. Successes
// completed before the failure are discarded from the return value.
func (c *Client) CallFailFast(ctx context.Context, items []BatchItem, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]BatchResult, len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item BatchItem) {
			defer wg.Done()
			defer func() { <-sem }()
			data, err := c.dispatch(fctx, item.Path, item.Input, KindQuery)
			if err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			results[i] = BatchResult{ID: item.ID, Data: data}
		}(i, item)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// CallSequential executes items strictly one-at-a-time, preserving input
// order — required when a later item's input depends on an earlier item's
// observable side effects.
func (c *Client) CallSequential(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		data, err := c.dispatch(ctx, item.Path, item.Input, KindQuery)
		results[i] = BatchResult{ID: item.ID, Data: data, Err: err}
	}
	return results
}
