package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for PolicyProbe.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Combination metrics
	combinationsExecuted *prometheus.CounterVec
	combinationDuration  *prometheus.HistogramVec

	// Step metrics
	stepOutcomes *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	// Store metrics
	storeWrites  *prometheus.CounterVec
	storeRetries prometheus.Counter

	// Comparison metrics
	comparisonDifferences *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// System metrics
	activeRuns     prometheus.Gauge
	activeSessions prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of sanity runs started",
			},
			[]string{"owner"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of sanity runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of sanity run execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		combinationsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "combinations_executed_total",
				Help:      "Total number of combinations executed",
			},
			[]string{"category", "status"},
		),
		combinationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "combination_duration_seconds",
				Help:      "Duration of combination execution in seconds",
				Buckets:   buckets,
			},
			[]string{"category"},
		),

		stepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_outcomes_total",
				Help:      "Total number of step outcomes by step, environment and status",
			},
			[]string{"step", "environment", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step invocations in seconds",
				Buckets:   buckets,
			},
			[]string{"step", "environment"},
		),

		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_writes_total",
				Help:      "Total number of progress store writes",
			},
			[]string{"status"},
		),
		storeRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_write_retries_total",
				Help:      "Total number of retried progress store writes",
			},
		),

		comparisonDifferences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "comparison_differences_total",
				Help:      "Total number of target vs staging field differences by severity",
			},
			[]string{"severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Current number of sessions",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.combinationsExecuted,
		m.combinationDuration,
		m.stepOutcomes,
		m.stepDuration,
		m.storeWrites,
		m.storeRetries,
		m.comparisonDifferences,
		m.errorsByClass,
		m.activeRuns,
		m.activeSessions,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(owner string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(owner).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Combination Metrics

// RecordCombinationExecuted records the execution of one combination.
func (m *Metrics) RecordCombinationExecuted(category, status string, duration time.Duration) {
	if m.combinationsExecuted == nil {
		return
	}
	m.combinationsExecuted.WithLabelValues(category, status).Inc()
	m.combinationDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// Step Metrics

// RecordStepOutcome records a single step outcome.
func (m *Metrics) RecordStepOutcome(step, environment, status string, duration time.Duration) {
	if m.stepOutcomes == nil {
		return
	}
	m.stepOutcomes.WithLabelValues(step, environment, status).Inc()
	if duration > 0 {
		m.stepDuration.WithLabelValues(step, environment).Observe(duration.Seconds())
	}
}

// Store Metrics

// RecordStoreWrite records a progress store write attempt.
func (m *Metrics) RecordStoreWrite(status string) {
	if m.storeWrites == nil {
		return
	}
	m.storeWrites.WithLabelValues(status).Inc()
}

// RecordStoreRetry records a retried progress store write.
func (m *Metrics) RecordStoreRetry() {
	if m.storeRetries == nil {
		return
	}
	m.storeRetries.Inc()
}

// Comparison Metrics

// RecordComparisonDifferences records field differences found by severity.
func (m *Metrics) RecordComparisonDifferences(severity string, count int) {
	if m.comparisonDifferences == nil || count <= 0 {
		return
	}
	m.comparisonDifferences.WithLabelValues(severity).Add(float64(count))
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// System Metrics

// SetActiveSessions sets the current number of sessions.
func (m *Metrics) SetActiveSessions(count float64) {
	if m.activeSessions == nil {
		return
	}
	m.activeSessions.Set(count)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
