// Package metrics exposes pipeline counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deploybot"

// Registry wraps a prometheus.Registry with the collectors the pipeline
// reports to. A nil *Registry records nothing.
type Registry struct {
	*prometheus.Registry

	pipelines  *prometheus.CounterVec
	steps      *prometheus.HistogramVec
	dispatches *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

func NewRegistry() *Registry {
	r := &Registry{
		Registry: prometheus.NewRegistry(),
		pipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipelines_total",
			Help:      "Pipelines run, by action and outcome.",
		}, []string{"action", "outcome"}),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_step_duration_seconds",
			Help:      "Duration of verification steps, by step and result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Platform actions sent, by action and whether the platform accepted them.",
		}, []string{"action", "accepted"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_in_flight",
			Help:      "Pipelines currently running.",
		}),
	}

	r.MustRegister(
		r.pipelines,
		r.steps,
		r.dispatches,
		r.inFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}

func (r *Registry) PipelineStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

func (r *Registry) PipelineFinished(action, outcome string) {
	if r == nil {
		return
	}
	r.inFlight.Dec()
	r.pipelines.WithLabelValues(action, outcome).Inc()
}

func (r *Registry) ObserveStep(step, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(step, result).Observe(d.Seconds())
}

func (r *Registry) ObserveDispatch(action string, accepted bool) {
	if r == nil {
		return
	}
	label := "false"
	if accepted {
		label = "true"
	}
	r.dispatches.WithLabelValues(action, label).Inc()
}
