// Package observability implements the Observability component:
// Prometheus counters/gauges/histogram exposed at /metrics, plus a
// CounterVec-backed adapter satisfying the small Counter interface the
// cache package depends on without importing Prometheus itself. The RPC
// client's RateLimitObserver is implemented by Registry directly.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine updates.
type Registry struct {
	MessagesTotal     prometheus.Counter
	FirstLayerPass    *prometheus.CounterVec // {internal|external}
	SecondLayerCheck  *prometheus.CounterVec // {internal|external}
	SecondLayerPass   *prometheus.CounterVec // {internal|external}
	Alerts            *prometheus.CounterVec // {success|failure}
	CacheHits         *prometheus.CounterVec // {receipt|pairmeta|wbnbprice|no_data_pair}; fourmeme lookups are not counted
	Fallback          *prometheus.CounterVec // {1m_5m|5m_1h}
	RateLimited       prometheus.Counter     // 429s
	WSConnections     prometheus.Gauge
	CacheSize         *prometheus.GaugeVec // {kind}
	ProcessingSeconds prometheus.Histogram

	reg *prometheus.Registry
}

// NewRegistry builds and registers every metric on a fresh registry,
// isolated from prometheus.DefaultRegisterer so tests can construct
// multiple registries without collision.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		MessagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swapwatch_messages_total",
			Help: "Total WS frames received.",
		}),
		FirstLayerPass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapwatch_first_layer_pass_total",
			Help: "Events admitted by Layer-1, by origin.",
		}, []string{"origin"}),
		SecondLayerCheck: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapwatch_second_layer_check_total",
			Help: "Events evaluated by Layer-2, by origin.",
		}, []string{"origin"}),
		SecondLayerPass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapwatch_second_layer_pass_total",
			Help: "Events that triggered Layer-2 rules, by origin.",
		}, []string{"origin"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapwatch_alerts_total",
			Help: "Dispatched alerts, by outcome.",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapwatch_cache_hits_total",
			Help: "Cache hits, by kind.",
		}, []string{"kind"}),
		Fallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swapwatch_fallback_total",
			Help: "Layer-2 window fallback widenings.",
		}, []string{"transition"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swapwatch_rate_limited_total",
			Help: "429 responses observed from the RPC endpoint.",
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swapwatch_ws_connections",
			Help: "Live WebSocket connections (0 or 1).",
		}),
		CacheSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swapwatch_cache_size",
			Help: "Warm-tier entry count, by kind.",
		}, []string{"kind"}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swapwatch_processing_seconds",
			Help:    "End-to-end per-event processing latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.MessagesTotal, r.FirstLayerPass, r.SecondLayerCheck, r.SecondLayerPass,
		r.Alerts, r.CacheHits, r.Fallback, r.RateLimited, r.WSConnections,
		r.CacheSize, r.ProcessingSeconds,
	)
	return r
}

// Handler returns the /metrics HTTP handler in Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve starts the metrics HTTP server and blocks until ctx is cancelled.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Error("observability: metrics server failed", "err", err)
			return err
		}
		return nil
	}
}

// counterAdapter satisfies the cache package's Counter interface by
// wrapping one prometheus.Counter from a CounterVec.
type counterAdapter struct{ c prometheus.Counter }

func (a counterAdapter) Inc() { a.c.Inc() }

// CacheHitCounter returns a Counter adapter for one cache kind label.
func (r *Registry) CacheHitCounter(kind string) counterAdapter {
	return counterAdapter{c: r.CacheHits.WithLabelValues(kind)}
}

// ObserveRateLimit implements rpcclient.RateLimitObserver.
func (r *Registry) ObserveRateLimit(_ time.Duration) {
	r.RateLimited.Inc()
}

// ObserveSecondLayerCheck implements filter.Engine's Metrics interface,
// counting every Layer-2 evaluation by event origin.
func (r *Registry) ObserveSecondLayerCheck(origin string) {
	r.SecondLayerCheck.WithLabelValues(origin).Inc()
}

// ObserveSecondLayerPass implements filter.Engine's Metrics interface,
// counting Layer-2 evaluations whose rule set passed under the configured
// trigger mode (any: at least one rule fired; all: every rule fired).
func (r *Registry) ObserveSecondLayerPass(origin string) {
	r.SecondLayerPass.WithLabelValues(origin).Inc()
}

// ObserveFallback implements filter.Engine's Metrics interface, counting
// each {1m_5m|5m_1h} window-widening transition.
func (r *Registry) ObserveFallback(transition string) {
	r.Fallback.WithLabelValues(transition).Inc()
}

// ObserveAlert implements dispatch.Pool's Metrics interface, counting
// dispatch outcomes by {success|failure}.
func (r *Registry) ObserveAlert(outcome string) {
	r.Alerts.WithLabelValues(outcome).Inc()
}

// SetCacheSize implements cache.Manager's GaugeVec interface, reporting
// warm-tier entry count by kind after each sweep.
func (r *Registry) SetCacheSize(kind string, n float64) {
	r.CacheSize.WithLabelValues(kind).Set(n)
}
