package workflow

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus metrics for workflow execution.
//
// Metrics exposed (all namespaced with "workflow_"):
//
//  1. execution_duration_ms (histogram): whole-workflow wall time.
//     Labels: workflow_name, status.
//  2. executions_total (counter): terminal outcome count.
//     Labels: workflow_name, status.
//  3. step_duration_ms (histogram): per-step wall time.
//     Labels: workflow_name, step_name, status.
//  4. step_retries_total (counter): retry attempts per step.
//     Labels: workflow_name, step_name.
//  5. dag_inflight_nodes (gauge): nodes currently executing in a DAG run.
//  6. dag_queue_depth (gauge): nodes ready but not yet dispatched in a DAG run.
type PrometheusMetrics struct {
	executionDuration *prometheus.HistogramVec
	executionsTotal   *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	stepRetries       *prometheus.CounterVec
	dagInflightNodes  prometheus.Gauge
	dagQueueDepth     prometheus.Gauge

	registry prometheus.Registerer
	mu       sync.RWMutex
	enabled  bool
}

// NewPrometheusMetrics creates and registers all workflow execution metrics
// with the provided Prometheus registry. A nil registry uses
// prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{registry: registry, enabled: true}

	pm.executionDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workflow",
		Name:      "execution_duration_ms",
		Help:      "Whole-workflow execution duration in milliseconds",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
	}, []string{"workflow_name", "status"})

	pm.executionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "executions_total",
		Help:      "Cumulative count of terminal workflow executions",
	}, []string{"workflow_name", "status"})

	pm.stepDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workflow",
		Name:      "step_duration_ms",
		Help:      "Per-step execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"workflow_name", "step_name", "status"})

	pm.stepRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workflow",
		Name:      "step_retries_total",
		Help:      "Cumulative count of step retry attempts",
	}, []string{"workflow_name", "step_name"})

	pm.dagInflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "workflow",
		Name:      "dag_inflight_nodes",
		Help:      "Current number of DAG nodes executing concurrently",
	})

	pm.dagQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "workflow",
		Name:      "dag_queue_depth",
		Help:      "Number of DAG nodes ready to run but not yet dispatched",
	})

	return pm
}

// RecordWorkflowDuration records a terminal workflow's execution time.
func (pm *PrometheusMetrics) RecordWorkflowDuration(workflowName, status string, elapsedMS float64) {
	if !pm.isEnabled() {
		return
	}
	pm.executionDuration.WithLabelValues(workflowName, status).Observe(elapsedMS)
}

// IncWorkflowExecutions increments the terminal execution counter.
func (pm *PrometheusMetrics) IncWorkflowExecutions(workflowName, status string) {
	if !pm.isEnabled() {
		return
	}
	pm.executionsTotal.WithLabelValues(workflowName, status).Inc()
}

// RecordStepDuration records one step's execution time. A zero elapsedMS is
// valid and expected for cache hits.
func (pm *PrometheusMetrics) RecordStepDuration(workflowName, stepName, status string, elapsedMS float64) {
	if !pm.isEnabled() {
		return
	}
	pm.stepDuration.WithLabelValues(workflowName, stepName, status).Observe(elapsedMS)
}

// RecordStepLatency is a time.Duration-based convenience wrapper around
// RecordStepDuration that converts latency to whole milliseconds.
func (pm *PrometheusMetrics) RecordStepLatency(workflowName, stepName string, latency time.Duration, status string) {
	pm.RecordStepDuration(workflowName, stepName, status, float64(latency.Milliseconds()))
}

// IncStepRetries increments the per-step retry counter.
func (pm *PrometheusMetrics) IncStepRetries(workflowName, stepName string) {
	if !pm.isEnabled() {
		return
	}
	pm.stepRetries.WithLabelValues(workflowName, stepName).Inc()
}

// UpdateDAGInflightNodes sets the current DAG concurrency level.
func (pm *PrometheusMetrics) UpdateDAGInflightNodes(count int) {
	if !pm.isEnabled() {
		return
	}
	pm.dagInflightNodes.Set(float64(count))
}

// UpdateDAGQueueDepth sets the current DAG ready-queue depth.
func (pm *PrometheusMetrics) UpdateDAGQueueDepth(depth int) {
	if !pm.isEnabled() {
		return
	}
	pm.dagQueueDepth.Set(float64(depth))
}

func (pm *PrometheusMetrics) isEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// Disable temporarily disables metric recording (useful for testing).
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// Reset clears gauge values. Counters and histograms are cumulative by
// design and cannot be reset without unregistering them.
func (pm *PrometheusMetrics) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.dagInflightNodes.Set(0)
	pm.dagQueueDepth.Set(0)
}
