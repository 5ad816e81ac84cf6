// Package metrics exposes run and per-target counters for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/pricewatch/monitor/internal/runner"
)

const namespace = "pricewatch"

// Outcome labels for pricewatch_target_results_total.
const (
	OutcomeBaseline  = "baseline"
	OutcomeUnchanged = "unchanged"
	OutcomeChanged   = "changed"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	Results       *prometheus.CounterVec
	RenderSeconds prometheus.Histogram
	NotifySeconds prometheus.Histogram
	LastRunTime   prometheus.Gauge
	Targets       prometheus.Gauge
}

var _ runner.Observer = (*Metrics)(nil)

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Monitoring runs completed, by trigger.",
		}, []string{"trigger"}),
		Results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_results_total",
			Help:      "Per-target outcomes, by outcome and failing stage.",
		}, []string{"outcome", "stage"}),
		RenderSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time to render one page.",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 45},
		}),
		NotifySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notify_duration_seconds",
			Help:      "Time to hand one alert to the provider.",
			Buckets:   prometheus.DefBuckets,
		}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Finish time of the last run.",
		}),
		Targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "targets",
			Help:      "Targets processed by the last run.",
		}),
	}
	reg.MustRegister(
		m.Runs, m.Results, m.RenderSeconds, m.NotifySeconds, m.LastRunTime, m.Targets,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) ObserveTarget(_ context.Context, o *runner.Outcome) error {
	if o.RenderDuration > 0 {
		m.RenderSeconds.Observe(o.RenderDuration.Seconds())
	}
	if o.NotifyDuration > 0 {
		m.NotifySeconds.Observe(o.NotifyDuration.Seconds())
	}
	m.Results.WithLabelValues(outcome(o), string(o.Stage)).Inc()
	return nil
}

func (m *Metrics) ObserveRun(_ context.Context, e *runner.Execution) error {
	m.Runs.WithLabelValues(e.Trigger).Inc()
	m.LastRunTime.Set(float64(e.FinishedAt.Unix()))
	m.Targets.Set(float64(len(e.Results)))
	return nil
}

func outcome(o *runner.Outcome) string {
	switch {
	case o.Result.Failed():
		return OutcomeFailed
	case o.Bootstrap:
		return OutcomeBaseline
	case o.Result.Changed:
		return OutcomeChanged
	}
	return OutcomeUnchanged
}
