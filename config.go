package rpckit

import (
	"time"

	"github.com/tomtom215/rpckit/backoff"
	"github.com/tomtom215/rpckit/internal/rpclog"
	"github.com/tomtom215/rpckit/internal/rpcmetrics"
)

// RetryConfig configures the built-in retry interceptor and the dispatch
// layer's default retry schedule.
type RetryConfig struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         bool
	Backoff        backoff.Strategy
	RetryableCodes []string
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Jitter:     true,
		Backoff:    backoff.Exponential,
	}
}

// ReconnectConfig configures the subscription engine's reconnection policy.
type ReconnectConfig struct {
	AutoReconnect  bool
	MaxReconnects  int
	ReconnectDelay time.Duration

	// ReconnectRateLimit/ReconnectBurst cap reconnect attempts per second
	// across every subscription on this client, on top of each
	// subscription's own backoff delay. Zero disables the cap.
	ReconnectRateLimit float64
	ReconnectBurst     int
}

func defaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{AutoReconnect: true, MaxReconnects: 5, ReconnectDelay: 500 * time.Millisecond}
}

// DedupeScope selects whether the dedupe interceptor shares a process-wide
// cache or one scoped to this client.
type DedupeScope string

const (
	DedupeScopeClient DedupeScope = "client"
	DedupeScopeGlobal DedupeScope = "global"
)

// DedupeConfig configures request deduplication.
type DedupeConfig struct {
	Enabled bool
	Scope   DedupeScope
	KeyFn   func(path string, input any) string
}

func defaultDedupeConfig() DedupeConfig {
	return DedupeConfig{Enabled: true, Scope: DedupeScopeClient}
}

// Hooks are lifecycle callbacks fired around every dispatch. All are
// best-effort: a panic or error inside a hook is swallowed to preserve the
// dispatch outcome.
type Hooks struct {
	OnRequest  func(rc *RequestContext)
	OnResponse func(rc *RequestContext, result any)
	OnError    func(rc *RequestContext, err error)
}

// Config is the client's recognized option set.
type Config struct {
	Timeout           time.Duration
	SubscriptionPaths map[string]bool
	Interceptors      []Interceptor
	Hooks             Hooks
	ValidateInput     bool
	ValidateOutput    bool
	Retry             RetryConfig
	Reconnect         ReconnectConfig
	Dedupe            DedupeConfig
	Debug             bool

	logger  *rpclog.Logger
	metrics *rpcmetrics.Metrics
}

func defaultConfig() Config {
	return Config{
		SubscriptionPaths: make(map[string]bool),
		Retry:             defaultRetryConfig(),
		Reconnect:         defaultReconnectConfig(),
		Dedupe:            defaultDedupeConfig(),
	}
}

// Option mutates a Config being built by New.
type Option func(*Config)

func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

func WithSubscriptionPaths(paths ...string) Option {
	return func(c *Config) {
		for _, p := range paths {
			c.SubscriptionPaths[p] = true
		}
	}
}

func WithInterceptors(interceptors ...Interceptor) Option {
	return func(c *Config) { c.Interceptors = append(c.Interceptors, interceptors...) }
}

func WithHooks(h Hooks) Option { return func(c *Config) { c.Hooks = h } }

func WithValidation(input, output bool) Option {
	return func(c *Config) { c.ValidateInput = input; c.ValidateOutput = output }
}

func WithRetry(r RetryConfig) Option { return func(c *Config) { c.Retry = r } }

func WithReconnect(r ReconnectConfig) Option { return func(c *Config) { c.Reconnect = r } }

func WithDedupe(d DedupeConfig) Option { return func(c *Config) { c.Dedupe = d } }

func WithDebug(debug bool) Option { return func(c *Config) { c.Debug = debug } }

// WithMetrics makes the client report to m, whose collectors rpcmetrics.New
// has already registered.
func WithMetrics(m *rpcmetrics.Metrics) Option { return func(c *Config) { c.metrics = m } }

func (c *Config) retryableFn() func(error) bool {
	if len(c.Retry.RetryableCodes) == 0 {
		return func(err error) bool {
			return retryableErr(err, nil)
		}
	}
	set := make(map[string]bool, len(c.Retry.RetryableCodes))
	for _, code := range c.Retry.RetryableCodes {
		set[code] = true
	}
	return func(err error) bool {
		return retryableErr(err, set)
	}
}
