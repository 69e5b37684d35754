// Package rpcmetrics exposes the runtime's prometheus collectors: a small
// package-level collector set that a caller registers against its own
// Registerer.
package rpcmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the counters/histograms the dispatch, batch, and
// subscription layers update. A nil *Metrics is safe to call into — every
// method is a no-op guard over a nil receiver.
type Metrics struct {
	DispatchDuration *prometheus.HistogramVec
	Retries          *prometheus.CounterVec
	DedupHits        prometheus.Counter
	Reconnects       *prometheus.CounterVec
}

// New builds and registers the collector set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpckit",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency by path and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "outcome"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpckit",
			Name:      "retries_total",
			Help:      "Retry attempts by path.",
		}, []string{"path"}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rpckit",
			Name:      "dedup_hits_total",
			Help:      "Calls that attached to an already in-flight dedup entry.",
		}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpckit",
			Name:      "subscription_reconnects_total",
			Help:      "Subscription reconnect attempts by path and reason.",
		}, []string{"path", "reason"}),
	}
	reg.MustRegister(m.DispatchDuration, m.Retries, m.DedupHits, m.Reconnects)
	return m
}

func (m *Metrics) ObserveDispatch(path, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(path, outcome).Observe(seconds)
}

func (m *Metrics) IncRetry(path string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(path).Inc()
}

func (m *Metrics) IncDedupHit() {
	if m == nil {
		return
	}
	m.DedupHits.Inc()
}

func (m *Metrics) IncReconnect(path, reason string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(path, reason).Inc()
}
