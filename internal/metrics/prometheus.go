/*-------------------------------------------------------------------------
 *
 * prometheus.go
 *    Prometheus instrumentation for NeuronFlow
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/metrics/prometheus.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Request metrics */
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	/* Workflow metrics */
	workflowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_workflows_total",
			Help: "Total number of workflows by terminal status",
		},
		[]string{"status"},
	)

	stepDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_step_dispatches_total",
			Help: "Total number of step dispatches",
		},
		[]string{"phase", "status"},
	)

	stepDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuronflow_step_dispatch_duration_seconds",
			Help:    "Step dispatch duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"phase"},
	)

	stepRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuronflow_step_retries_total",
			Help: "Total number of step retry attempts",
		},
	)

	/* Chat metrics */
	chatInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_chat_invocations_total",
			Help: "Total number of chat protocol invocations",
		},
		[]string{"connector", "status"},
	)

	chatTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_chat_tokens_total",
			Help: "Total number of tokens reported by connectors",
		},
		[]string{"connector"},
	)

	/* Evaluator metrics */
	evalSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuronflow_eval_samples_total",
			Help: "Total number of performance samples recorded",
		},
		[]string{"outcome"},
	)

	evalFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuronflow_eval_flushes_total",
			Help: "Total number of evaluation window flushes",
		},
	)
)

/* Handler returns the Prometheus metrics HTTP handler */
func Handler() http.Handler {
	return promhttp.Handler()
}

/* RecordHTTPRequest records an HTTP request */
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

/* RecordWorkflowTerminal records a workflow reaching a terminal status */
func RecordWorkflowTerminal(status string) {
	workflowsTotal.WithLabelValues(status).Inc()
}

/* RecordStepDispatch records a completed step dispatch */
func RecordStepDispatch(phase, status string, duration time.Duration) {
	stepDispatchesTotal.WithLabelValues(phase, status).Inc()
	stepDispatchDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

/* RecordStepRetry records a step retry attempt */
func RecordStepRetry() {
	stepRetriesTotal.Inc()
}

/* RecordChatInvocation records a chat protocol invocation */
func RecordChatInvocation(connector, status string, tokens int) {
	chatInvocationsTotal.WithLabelValues(connector, status).Inc()
	if tokens > 0 {
		chatTokensTotal.WithLabelValues(connector).Add(float64(tokens))
	}
}

/* RecordEvalSample records a performance sample */
func RecordEvalSample(outcome string) {
	evalSamplesTotal.WithLabelValues(outcome).Inc()
}

/* RecordEvalFlush records an evaluation window flush */
func RecordEvalFlush() {
	evalFlushesTotal.Inc()
}
