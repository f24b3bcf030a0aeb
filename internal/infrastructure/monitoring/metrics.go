package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for device lifecycle operations.
type Metrics struct {
	// Install metrics
	InstallsTotal   *prometheus.CounterVec
	InstallDuration *prometheus.HistogramVec

	// Launch metrics
	LaunchesTotal  *prometheus.CounterVec
	LaunchDuration *prometheus.HistogramVec

	// Permission metrics
	GrantsTotal  prometheus.Counter
	GrantsFailed prometheus.Counter

	// Remote command metrics
	CommandsTotal *prometheus.CounterVec

	// Test run metrics
	TestRunsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		InstallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "butler_installs_total",
				Help: "Total number of package installs by result",
			},
			[]string{"result"},
		),
		InstallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "butler_install_duration_seconds",
				Help:    "Package install duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 240},
			},
			[]string{"result"},
		),
		LaunchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "butler_launches_total",
				Help: "Total number of app launches by result",
			},
			[]string{"result"},
		),
		LaunchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "butler_launch_duration_seconds",
				Help:    "App launch duration in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"result"},
		),
		GrantsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "butler_permission_grants_total",
				Help: "Total number of permission grant attempts",
			},
		),
		GrantsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "butler_permission_grants_failed_total",
				Help: "Total number of failed permission grant attempts",
			},
		),
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "butler_remote_commands_total",
				Help: "Total number of remote commands issued by kind",
			},
			[]string{"kind"},
		),
		TestRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "butler_test_runs_total",
				Help: "Total number of instrumentation runs started by mode",
			},
			[]string{"mode"},
		),
	}
}

// Registry returns the underlying registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer tracks duration of an operation.
type Timer struct {
	metrics   *Metrics
	operation string
	start     time.Time
}

// NewTimer creates a timer for the given operation ("install" or "launch").
func NewTimer(metrics *Metrics, operation string) *Timer {
	return &Timer{
		metrics:   metrics,
		operation: operation,
		start:     time.Now(),
	}
}

// Stop records the operation duration and outcome.
func (t *Timer) Stop(result string) {
	if t.metrics == nil {
		return
	}
	elapsed := time.Since(t.start).Seconds()
	switch t.operation {
	case "install":
		t.metrics.InstallsTotal.WithLabelValues(result).Inc()
		t.metrics.InstallDuration.WithLabelValues(result).Observe(elapsed)
	case "launch":
		t.metrics.LaunchesTotal.WithLabelValues(result).Inc()
		t.metrics.LaunchDuration.WithLabelValues(result).Observe(elapsed)
	}
}
