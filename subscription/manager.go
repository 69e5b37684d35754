package subscription

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/rpckit/internal/rpclog"
)

// ManagerConfig configures every Engine the Manager starts, plus the
// supervisor tree's own failure tolerance.
type ManagerConfig struct {
	AutoReconnect  bool
	MaxReconnects  int
	ReconnectDelay time.Duration
	BufferCap      int
	Metrics        Metrics
	Logger         *rpclog.Logger

	// FailureThreshold/FailureDecay/FailureBackoff/ShutdownTimeout tune the
	// supervisor's own crash tolerance for pump goroutines, independent of
	// the engine's own transport-level reconnect/backoff. Zero values fall
	// back to suture's defaults.
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration

	// ReconnectRateLimit/ReconnectBurst bound how many reconnect attempts
	// per second, across every subscription this Manager owns, may proceed
	// past backoff's own per-subscription delay. Zero disables the limiter.
	ReconnectRateLimit float64
	ReconnectBurst     int
}

// Manager supervises one Engine per open subscription under a suture
// supervisor tree, so a panic inside an engine's pump goroutine is a crash
// isolated to that subscription rather than the whole process — a
// different failure domain than the engine's own transport-level
// reconnect/backoff state machine, which suture knows nothing about.
type Manager struct {
	cfg              ManagerConfig
	supervisor       *suture.Supervisor
	reconnectLimiter *rate.Limiter
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}

	var eventHook suture.EventHook
	if cfg.Logger != nil {
		eventHook = (&sutureslog.Handler{Logger: cfg.Logger.Slog()}).MustHook()
	}

	sup := suture.New("rpckit-subscriptions", suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})

	var limiter *rate.Limiter
	if cfg.ReconnectRateLimit > 0 {
		burst := cfg.ReconnectBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ReconnectRateLimit), burst)
	}

	m := &Manager{cfg: cfg, supervisor: sup, reconnectLimiter: limiter}
	go sup.Serve(context.Background())
	return m
}

// enginePump adapts an *Engine into a suture.Service: Serve runs the engine
// to completion and returns suture.ErrDoNotRestart once it reaches Closed,
// so suture does not restart a subscription that shut down on purpose.
type enginePump struct {
	engine *Engine
}

func (p *enginePump) Serve(ctx context.Context) error {
	p.engine.Run(ctx)
	return suture.ErrDoNotRestart
}

func (p *enginePump) String() string { return "rpckit-subscription-engine:" + p.engine.path }

// Start opens a new subscription on path via resubscribe, registers it
// under the supervisor, and returns a Handle for the first consumer.
func (m *Manager) Start(ctx context.Context, path string, resubscribe Resubscribe) (*Handle, error) {
	engine := NewEngine(EngineConfig{
		Path:             path,
		Resubscribe:      resubscribe,
		AutoReconnect:    m.cfg.AutoReconnect,
		MaxReconnects:    m.cfg.MaxReconnects,
		ReconnectDelay:   m.cfg.ReconnectDelay,
		BufferCap:        m.cfg.BufferCap,
		Metrics:          m.cfg.Metrics,
		ReconnectLimiter: m.reconnectLimiter,
	})

	token := m.supervisor.Add(&enginePump{engine: engine})
	id, q := engine.AddConsumer()

	go func() {
		select {
		case <-ctx.Done():
			engine.RemoveConsumer(id)
		case <-engine.Closed():
		}
	}()
	go func() {
		<-engine.Closed()
		m.remove(token)
	}()

	return &Handle{
		path:   path,
		engine: engine,
		id:     id,
		queue:  q,
	}, nil
}

// remove detaches token from the supervisor once its engine has fully
// closed, so suture stops tracking a terminal subscription.
func (m *Manager) remove(token suture.ServiceToken) {
	_ = m.supervisor.Remove(token)
}
