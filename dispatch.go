package rpckit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/rpckit/rpcerr"
	"github.com/tomtom215/rpckit/rpcpath"
)

// dispatch runs the full pipeline for a non-subscription procedure: the
// onRequest hook, the classified transport call threaded through the
// interceptor chain, the dispatch-level timeout fallback, and the
// onResponse/onError hooks (best-effort — swallowed to preserve outcome).
func (c *Client) dispatch(ctx context.Context, path string, input any, kind ProcedureKind) (result any, err error) {
	if _, verr := rpcpath.Validate(path); verr != nil {
		return nil, verr
	}
	if c.cfg.SubscriptionPaths[path] {
		return nil, &rpcerr.ValidationError{
			Path: path,
			Issues: []rpcerr.ValidationIssue{
				{Path: path, Message: "path is registered as a subscription; use Subscribe instead of Query/Mutate", Code: "SUBSCRIPTION_PATH"},
			},
		}
	}

	rc := newRequestContext(path, input, kind)
	rc.Meta["x-correlation-id"] = uuid.NewString()

	if c.cfg.Hooks.OnRequest != nil {
		safeHook(func() { c.cfg.Hooks.OnRequest(rc) })
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.Timeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}
	}

	start := time.Now()
	terminal := func(ctx context.Context, rc *RequestContext) (any, error) {
		res, terr := c.transport.Call(ctx, rc.Path, rc.Input)
		return res, classify(terr, rc.Path)
	}
	next := chain(c.cfg.Interceptors, terminal)

	result, err = next(callCtx, rc)
	elapsed := time.Since(start)

	if err != nil {
		err = reclassifyTimeout(callCtx, err, path, c.cfg.Timeout)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.cfg.metrics.ObserveDispatch(path, outcome, elapsed.Seconds())

	if err != nil {
		if c.cfg.Hooks.OnError != nil {
			safeHook(func() { c.cfg.Hooks.OnError(rc, err) })
		}
		return nil, err
	}
	if c.cfg.Hooks.OnResponse != nil {
		safeHook(func() { c.cfg.Hooks.OnResponse(rc, result) })
	}
	return result, nil
}

// reclassifyTimeout ensures a dispatch-level timeout surfaces as
// TimeoutError (not a generic network/cancel error) and that a cancelled
// parent context surfaces as CancelledError — timeout wins when both race.
func reclassifyTimeout(ctx context.Context, err error, path string, timeout time.Duration) error {
	if ctx.Err() == context.DeadlineExceeded {
		ms := int64(0)
		if timeout > 0 {
			ms = timeout.Milliseconds()
		}
		return &rpcerr.TimeoutError{Path: path, TimeoutMs: ms}
	}
	if ctx.Err() == context.Canceled {
		if _, ok := err.(*rpcerr.CancelledError); ok {
			return err
		}
		return &rpcerr.CancelledError{Path: path}
	}
	return err
}

func safeHook(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
