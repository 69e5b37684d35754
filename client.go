package rpckit

import (
	"context"

	"github.com/tomtom215/rpckit/dedup"
	"github.com/tomtom215/rpckit/internal/rpclog"
	"github.com/tomtom215/rpckit/internal/rpcmetrics"
	"github.com/tomtom215/rpckit/subscription"
)

// Client is the single contract-driven surface over an injected Transport:
// query/mutation dispatch, batch dispatch, and subscriptions. Build one
// with New and navigate it with Proxy.
type Client struct {
	cfg         Config
	transport   Transport
	dedupeCache *dedup.Cache
	subs        *subscription.Manager
}

// New builds a Client over transport, applying opts over the defaults.
func New(transport Transport, opts ...Option) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = rpclog.New(cfg.Debug)
	}

	c := &Client{cfg: cfg, transport: transport}

	// Auto-wired interceptors compose outside-in as: validate, then the
	// caller's own interceptors, then dedupe, then retry — retry sits
	// closest to the transport call so it retries the one shared call
	// dedupe collapses concurrent identical callers onto, and validation
	// runs before any of that so a malformed call is rejected up front.
	interceptors := append([]Interceptor{}, cfg.Interceptors...)

	if cfg.ValidateInput || cfg.ValidateOutput {
		validateInterceptor := ValidateInterceptor(ValidateOptions{
			ValidateInput:  cfg.ValidateInput,
			ValidateOutput: cfg.ValidateOutput,
		})
		interceptors = append([]Interceptor{validateInterceptor}, interceptors...)
	}

	if cfg.Dedupe.Enabled {
		if cfg.Dedupe.Scope == DedupeScopeGlobal {
			c.dedupeCache = dedup.Global()
		} else {
			c.dedupeCache = dedup.New()
		}
		interceptors = append(interceptors, DedupeInterceptor(DedupeOptions{
			Cache:   c.dedupeCache,
			KeyFn:   cfg.Dedupe.KeyFn,
			Metrics: cfg.metrics,
		}))
	}

	interceptors = append(interceptors, RetryInterceptor(RetryOptions{
		Retry:   cfg.Retry,
		RetryOn: cfg.retryableFn(),
		Metrics: cfg.metrics,
	}))

	c.cfg.Interceptors = interceptors

	c.subs = subscription.NewManager(subscription.ManagerConfig{
		AutoReconnect:      cfg.Reconnect.AutoReconnect,
		MaxReconnects:      cfg.Reconnect.MaxReconnects,
		ReconnectDelay:     cfg.Reconnect.ReconnectDelay,
		ReconnectRateLimit: cfg.Reconnect.ReconnectRateLimit,
		ReconnectBurst:     cfg.Reconnect.ReconnectBurst,
		Metrics:            subscriptionMetricsAdapter(cfg.metrics),
		Logger:             cfg.logger,
	})

	return c
}

// Call dispatches a query or mutation. kind distinguishes them only for
// hooks/logging purposes — both are single unary round-trips.
func (c *Client) Call(ctx context.Context, path string, input any, kind ProcedureKind) (any, error) {
	return c.dispatch(ctx, path, input, kind)
}

// Query is sugar for Call(..., KindQuery).
func (c *Client) Query(ctx context.Context, path string, input any) (any, error) {
	return c.dispatch(ctx, path, input, KindQuery)
}

// Mutate is sugar for Call(..., KindMutation).
func (c *Client) Mutate(ctx context.Context, path string, input any) (any, error) {
	return c.dispatch(ctx, path, input, KindMutation)
}

// Subscribe opens path as a subscription; it always goes through the
// subscription engine regardless of whether path was registered via
// WithSubscriptionPaths. A path registered that way is instead guarded on
// the Query/Mutate side: dispatch rejects it there so a registered
// subscription path can't silently be called as a unary procedure. The same
// resubscribe closure serves the initial connect and every reconnect
// attempt, so the transport never sees a special-cased first call.
func (c *Client) Subscribe(ctx context.Context, path string, input any) (*subscription.Handle, error) {
	resubscribe := func(rctx context.Context) (subscription.EventSequence, error) {
		seq, err := c.transport.Subscribe(rctx, path, input)
		if err != nil {
			return nil, classify(err, path)
		}
		return &eventSequenceAdapter{inner: seq}, nil
	}
	return c.subs.Start(ctx, path, resubscribe)
}

// eventSequenceAdapter adapts a Transport's EventSequence (this package's
// own Event/EventKind vocabulary) into subscription.EventSequence, so the
// subscription package stays importable without a cycle back to rpckit.
type eventSequenceAdapter struct {
	inner EventSequence
}

func (a *eventSequenceAdapter) Next(ctx context.Context) (subscription.Event, error) {
	ev, err := a.inner.Next(ctx)
	if err != nil {
		return subscription.Event{}, err
	}
	return subscription.Event{
		Kind:    subscription.EventKind(ev.Kind),
		Payload: ev.Payload,
		Err:     ev.Err,
	}, nil
}

func (a *eventSequenceAdapter) Cancel() error { return a.inner.Cancel() }

// subscriptionMetricsAdapter exposes *rpcmetrics.Metrics through the
// subscription package's minimal Metrics interface. *rpcmetrics.Metrics
// already implements IncReconnect(path, reason string) with a nil-receiver
// guard, so the adapter only needs to preserve a true nil as a true nil
// interface value.
func subscriptionMetricsAdapter(m *rpcmetrics.Metrics) subscription.Metrics {
	if m == nil {
		return nil
	}
	return m
}
