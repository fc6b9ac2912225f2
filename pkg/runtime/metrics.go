package runtime

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide Prometheus collectors named in 's
// ambient-observability carry-over (thinker request latency/outcome,
// sandbox dispatch latency, cache hit rate).
type Metrics struct {
	ThinkerRequests  *prometheus.CounterVec
	ThinkerLatency   prometheus.Histogram
	SandboxDispatch  *prometheus.CounterVec
	SandboxLatency   prometheus.Histogram
	CacheHitRatio    prometheus.Gauge
}

// NewMetrics registers every collector against a fresh registry so a run
// never collides with another process's default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ThinkerRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_thinker_requests_total",
			Help: "Thinker Client requests by outcome.",
		}, []string{"outcome"}),
		ThinkerLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "agentrun_thinker_request_seconds",
			Help: "Thinker Client request latency.",
		}),
		SandboxDispatch: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "agentrun_sandbox_dispatch_total",
			Help: "Sandbox Dispatcher calls by outcome.",
		}, []string{"outcome"}),
		SandboxLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "agentrun_sandbox_dispatch_seconds",
			Help: "Sandbox Dispatcher call latency.",
		}),
		CacheHitRatio: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "agentrun_thinker_cache_hit_ratio",
			Help: "Thinker Response Cache hit ratio.",
		}),
	}
}

// ObserveThinkerCall records one Generate call's outcome and latency.
func (m *Metrics) ObserveThinkerCall(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.ThinkerRequests.WithLabelValues(outcome).Inc()
	m.ThinkerLatency.Observe(time.Since(start).Seconds())
}

// ObserveSandboxCall records one Dispatch call's outcome and latency.
func (m *Metrics) ObserveSandboxCall(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.SandboxDispatch.WithLabelValues(outcome).Inc()
	m.SandboxLatency.Observe(time.Since(start).Seconds())
}

// ServeMetrics starts a blocking HTTP server exposing /metrics on addr. An
// empty addr is a no-op, matching runconfig.Config.MetricsAddr's "empty
// disables it" contract.
func ServeMetrics(addr string, reg *prometheus.Registry) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
