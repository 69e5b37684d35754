package rpckit

import (
	"context"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/golang-jwt/jwt/v5"

	validatorpkg "github.com/go-playground/validator/v10"

	"github.com/tomtom215/rpckit/backoff"
	"github.com/tomtom215/rpckit/dedup"
	"github.com/tomtom215/rpckit/internal/rpclog"
	"github.com/tomtom215/rpckit/internal/rpcmetrics"
	"github.com/tomtom215/rpckit/rpcerr"
)

// Next is the continuation an Interceptor calls to proceed down the chain.
type Next func(ctx context.Context, rc *RequestContext) (any, error)

// Interceptor wraps every dispatch. It may mutate rc.Meta, short-circuit by
// not calling next, wrap next in retries/timers/logging, or transform the
// result. Composition is standard onion: the first-registered interceptor
// observes both the earliest "before" and the latest "after".
type Interceptor func(ctx context.Context, rc *RequestContext, next Next) (any, error)

// chain composes interceptors (registration order) around terminal, the
// final Next that actually performs the transport call.
func chain(interceptors []Interceptor, terminal Next) Next {
	next := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		ic := interceptors[i]
		inner := next
		next = func(ctx context.Context, rc *RequestContext) (any, error) {
			return ic(ctx, rc, inner)
		}
	}
	return next
}

func retryableErr(err error, customSet map[string]bool) bool {
	if customSet == nil {
		return rpcerr.Retryable(err)
	}
	return customSet[rpcerr.ObservedCode(err)]
}

// LoggingInterceptor records "→ path input" before and "← path result
// duration" after, with the error on failure instead of the result when the
// call fails. A nil logger falls back to a no-op one rather than panicking.
func LoggingInterceptor(logger *rpclog.Logger) Interceptor {
	if logger == nil {
		logger = rpclog.Noop()
	}
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		log := logger.WithPath(rc.Path)
		log.Debugf("-> %s %v", rc.Path, rc.Input)
		start := time.Now()
		result, err := next(ctx, rc)
		elapsed := time.Since(start)
		if err != nil {
			log.Errorf("<- %s error=%v duration=%s", rc.Path, err, elapsed)
			return nil, err
		}
		log.Debugf("<- %s result=%v duration=%s", rc.Path, result, elapsed)
		return result, nil
	}
}

// RetryOptions configures RetryInterceptor.
type RetryOptions struct {
	Retry   RetryConfig
	RetryOn func(error) bool // defaults to the retryability table
	Metrics *rpcmetrics.Metrics
}

// RetryInterceptor wraps next in the backoff schedule gated by RetryOn
// (default = retryability table). Every attempt past the first (the retries
// themselves, not the initial call) increments Metrics.Retries by path.
func RetryInterceptor(opts RetryOptions) Interceptor {
	retryOn := opts.RetryOn
	if retryOn == nil {
		retryOn = rpcerr.Retryable
	}
	sched := backoff.RetrySchedule{
		Policy: backoff.Policy{
			Strategy: opts.Retry.Backoff,
			Base:     opts.Retry.BaseDelay,
			Max:      opts.Retry.MaxDelay,
			Jitter:   opts.Retry.Jitter,
		},
		MaxRetries: opts.Retry.MaxRetries,
		Retryable:  retryOn,
	}
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		return sched.Do(ctx, func(ctx context.Context, attempt int) (any, error) {
			if attempt > 0 {
				opts.Metrics.IncRetry(rc.Path)
			}
			return next(ctx, rc)
		})
	}
}

// AuthOptions configures AuthInterceptor.
type AuthOptions struct {
	GetToken       func(ctx context.Context) (string, error)
	HeaderName     string
	Prefix         string
	RefreshOnNearExpiry bool
	NearExpiry     time.Duration
}

// AuthInterceptor awaits GetToken (sync or async — Go callers simply choose
// whether their function blocks) and sets Meta[HeaderName] = Prefix + " " +
// token when the token is truthy; no header is set when it's empty. When
// RefreshOnNearExpiry is set and the token parses as a JWT, a second,
// unverified parse (no secret is held client-side — this is a client-side
// heuristic, not an auth backend) checks `exp` and calls GetToken again if
// the token is within NearExpiry of expiring.
func AuthInterceptor(opts AuthOptions) Interceptor {
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		token, err := opts.GetToken(ctx)
		if err != nil {
			return nil, &rpcerr.NetworkError{Path: rc.Path, Original: err}
		}

		if opts.RefreshOnNearExpiry && token != "" && nearExpiry(token, opts.NearExpiry) {
			token, err = opts.GetToken(ctx)
			if err != nil {
				return nil, &rpcerr.NetworkError{Path: rc.Path, Original: err}
			}
		}

		if token != "" {
			rc.Meta[opts.HeaderName] = opts.Prefix + " " + token
		}
		return next(ctx, rc)
	}
}

func nearExpiry(token string, within time.Duration) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	// ParseUnverified: we never hold the signing secret client-side, so this
	// only inspects the exp claim, it does not authenticate the token.
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		return false
	}
	expFloat, ok := claims["exp"].(float64)
	if !ok {
		return false
	}
	exp := time.Unix(int64(expFloat), 0)
	return time.Until(exp) < within
}

// TimingInterceptor captures elapsed ms and invokes onTiming on both
// success and failure paths.
func TimingInterceptor(onTiming func(path string, ms int64)) Interceptor {
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		start := time.Now()
		result, err := next(ctx, rc)
		onTiming(rc.Path, time.Since(start).Milliseconds())
		return result, err
	}
}

// DedupeOptions configures DedupeInterceptor.
type DedupeOptions struct {
	Cache   *dedup.Cache
	KeyFn   func(path string, input any) string
	Metrics *rpcmetrics.Metrics
}

// DedupeInterceptor shares in-flight calls on a key derived from
// rc.Path/rc.Input by default, or by a custom key function. A caller that
// attaches to an already in-flight entry rather than executing the call
// itself counts as a dedup hit on Metrics.DedupHits.
func DedupeInterceptor(opts DedupeOptions) Interceptor {
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		key := ""
		if opts.KeyFn != nil {
			key = opts.KeyFn(rc.Path, rc.Input)
		} else {
			key = dedup.Key(rc.Path, rc.Input)
		}
		result, err, hit := opts.Cache.DoMeasured(key, func() (any, error) {
			return next(ctx, rc)
		})
		if hit {
			opts.Metrics.IncDedupHit()
		}
		return result, err
	}
}

// ErrorHandlerInterceptor invokes handler on failure and re-throws.
func ErrorHandlerInterceptor(handler func(err error, rc *RequestContext)) Interceptor {
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		result, err := next(ctx, rc)
		if err != nil {
			handler(err, rc)
			return nil, err
		}
		return result, nil
	}
}

// CircuitBreakerOptions configures CircuitBreakerInterceptor.
type CircuitBreakerOptions struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// CircuitBreakerInterceptor wraps next in a per-path sony/gobreaker/v2
// circuit breaker so a path with sustained failures fails fast instead of
// queueing retries against a down host.
func CircuitBreakerInterceptor(opts CircuitBreakerOptions) Interceptor {
	var mu sync.Mutex
	breakers := make(map[string]*gobreaker.CircuitBreaker[any])
	settings := func(path string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        fmt.Sprintf("%s:%s", opts.Name, path),
			MaxRequests: opts.MaxRequests,
			Interval:    opts.Interval,
			Timeout:     opts.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
			},
		}
	}
	breakerFor := func(path string) *gobreaker.CircuitBreaker[any] {
		mu.Lock()
		defer mu.Unlock()
		cb, ok := breakers[path]
		if !ok {
			cb = gobreaker.NewCircuitBreaker[any](settings(path))
			breakers[path] = cb
		}
		return cb
	}
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		cb := breakerFor(rc.Path)
		return cb.Execute(func() (any, error) { return next(ctx, rc) })
	}
}

// ValidateOptions configures ValidateInterceptor.
type ValidateOptions struct {
	Validator      *validatorpkg.Validate
	ValidateInput  bool
	ValidateOutput bool
}

// ValidateInterceptor runs go-playground/validator struct-tag validation
// against rc.Input before calling next and, when ValidateOutput is set,
// against the result after next succeeds — either raises a ValidationError.
// This is the concrete mechanism behind the client's validateInput/
// validateOutput options.
func ValidateInterceptor(opts ValidateOptions) Interceptor {
	v := opts.Validator
	if v == nil {
		v = validatorpkg.New()
	}
	validate := func(ctx context.Context, path string, value any) error {
		if value == nil {
			return nil
		}
		if err := v.StructCtx(ctx, value); err != nil {
			if verrs, ok := err.(validatorpkg.ValidationErrors); ok {
				issues := make([]rpcerr.ValidationIssue, 0, len(verrs))
				for _, fe := range verrs {
					issues = append(issues, rpcerr.ValidationIssue{
						Path:    fe.Namespace(),
						Message: fe.Error(),
						Code:    fe.Tag(),
					})
				}
				return &rpcerr.ValidationError{Path: path, Issues: issues}
			}
			// Not a struct, or validator couldn't introspect it — skip,
			// it's the caller's shape enforcement responsibility.
		}
		return nil
	}
	return func(ctx context.Context, rc *RequestContext, next Next) (any, error) {
		if opts.ValidateInput {
			if err := validate(ctx, rc.Path, rc.Input); err != nil {
				return nil, err
			}
		}
		result, err := next(ctx, rc)
		if err != nil {
			return nil, err
		}
		if opts.ValidateOutput {
			if verr := validate(ctx, rc.Path, result); verr != nil {
				return nil, verr
			}
		}
		return result, nil
	}
}
