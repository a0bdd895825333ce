package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dotstar"

// Metrics collects execution metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	executions   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	compiles     *prometheus.CounterVec
	includes     *prometheus.CounterVec
	bootstraps   *prometheus.CounterVec
	environments *prometheus.GaugeVec
}

// NewMetrics creates metrics registered in a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Top-level guest executions by operation, mode and outcome.",
			},
			[]string{"operation", "mode", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of top-level guest executions.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "mode"},
		),
		compiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_total",
				Help:      "Compilations by outcome.",
			},
			[]string{"status"},
		),
		includes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "includes_total",
				Help:      "Include resolutions by outcome.",
			},
			[]string{"status"},
		),
		bootstraps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bootstraps_total",
				Help:      "Bootstrap files run by outcome.",
			},
			[]string{"status"},
		),
		environments: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "environments",
				Help:      "Environments created per mode.",
			},
			[]string{"mode"},
		),
	}
	m.registry.MustRegister(m.executions, m.duration, m.compiles, m.includes, m.bootstraps, m.environments)
	return m
}

// Outcome labels.
const (
	StatusOK    = "ok"
	StatusExit  = "exit"
	StatusError = "error"
)

// Status returns the outcome label for err.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveExecution records one top-level execution.
func (m *Metrics) ObserveExecution(operation, mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(operation, mode, status).Inc()
	m.duration.WithLabelValues(operation, mode).Observe(d.Seconds())
}

func (m *Metrics) CompileDone(status string) {
	if m == nil {
		return
	}
	m.compiles.WithLabelValues(status).Inc()
}

func (m *Metrics) IncludeDone(status string) {
	if m == nil {
		return
	}
	m.includes.WithLabelValues(status).Inc()
}

func (m *Metrics) BootstrapDone(status string) {
	if m == nil {
		return
	}
	m.bootstraps.WithLabelValues(status).Inc()
}

func (m *Metrics) EnvironmentCreated(mode string) {
	if m == nil {
		return
	}
	m.environments.WithLabelValues(mode).Inc()
}

// Registry returns the underlying registry, nil for nil metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
