// Package metrics registers the Prometheus instruments shared by the
// dispatcher, the tool supervisor, and the HTTP middleware, grounded on the
// teacher's orchestrator MustNewMetrics(registry) pattern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every counter/histogram the core emits.
type Metrics struct {
	Registry *prometheus.Registry

	StageTotal         *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestSeconds *prometheus.HistogramVec
	ToolRunsTotal      *prometheus.CounterVec
	ToolRunDuration    *prometheus.HistogramVec
}

// New constructs a Metrics bundle and registers it on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return MustNew(reg)
}

// MustNew registers the core's instruments onto an existing registry,
// panicking on a duplicate-registration programmer error.
func MustNew(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Registry: reg,
		StageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_stage_total",
			Help: "Pipeline stage transitions by outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		ToolRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_tool_runs_total",
			Help: "Tool runs by tool name and outcome.",
		}, []string{"tool_name", "outcome"}),
		ToolRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orchestrator_tool_run_duration_seconds",
			Help:    "Tool run wall-clock duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool_name"}),
	}
	reg.MustRegister(m.StageTotal, m.StageDuration, m.HTTPRequestsTotal,
		m.HTTPRequestSeconds, m.ToolRunsTotal, m.ToolRunDuration)
	return m
}

// ObserveStage records one pipeline stage's outcome and duration.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	m.StageTotal.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveHTTP records one HTTP request's route, method, status, duration.
func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestSeconds.WithLabelValues(route, method).Observe(d.Seconds())
}

// ObserveToolRun records one tool-run's outcome and duration.
func (m *Metrics) ObserveToolRun(toolName, outcome string, d time.Duration) {
	m.ToolRunsTotal.WithLabelValues(toolName, outcome).Inc()
	m.ToolRunDuration.WithLabelValues(toolName).Observe(d.Seconds())
}
