// Package metrics counts and times tool calls served by the MCP server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autodiff"

// Recorder owns a private registry so several servers (and tests) can live
// in one process.
type Recorder struct {
	registry *prometheus.Registry

	calls    *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	formulas prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls handled, by tool and transport.",
		}, []string{"tool", "transport"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Tool calls that returned an error, by tool and error kind.",
		}, []string{"tool", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Time spent handling a tool call.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"tool"}),
		formulas: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "formulas_per_call",
			Help:      "Number of formulas in differentiate and evaluate calls.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
	}
	r.registry.MustRegister(r.calls, r.failures, r.duration, r.formulas)
	return r
}

// Observe records one finished call. kind is empty on success.
func (r *Recorder) Observe(tool, transport, kind string, elapsed time.Duration) {
	r.calls.WithLabelValues(tool, transport).Inc()
	r.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
	if kind != "" {
		r.failures.WithLabelValues(tool, kind).Inc()
	}
}

func (r *Recorder) ObserveFormulas(n int) { r.formulas.Observe(float64(n)) }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
