// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// TurnsTotal counts conversational turns by terminal status (done, error).
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Total conversational turns by terminal status",
		},
		[]string{"status"},
	)

	// TurnDuration tracks the wall time of a full turn.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_turn_duration_seconds",
			Help:    "Conversational turn duration",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// FunctionCallsTotal counts dispatched function calls.
	FunctionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_function_calls_total",
			Help: "Dispatched function calls by name and outcome",
		},
		[]string{"name", "success"},
	)

	// FunctionCallsDropped counts calls discarded by the one-call-per-turn policy.
	FunctionCallsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_function_calls_dropped_total",
			Help: "Function calls emitted by the model after the first one in a turn",
		},
	)

	// ConfirmationOutcomes counts confirmation gate outcomes.
	ConfirmationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_confirmation_outcomes_total",
			Help: "Confirmation gate outcomes",
		},
		[]string{"resource", "operation", "outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assistant_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// MessagesTotal tracks persisted messages.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_messages_total",
			Help: "Total persisted messages",
		},
		[]string{"role"},
	)

	// FactExtractions counts background memory extraction runs.
	FactExtractions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_fact_extractions_total",
			Help: "Background fact extraction runs by status",
		},
		[]string{"status"},
	)

	// JournalPublishTotal counts journal publishes to NATS.
	JournalPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_journal_publish_total",
			Help: "Journal entries published to JetStream",
		},
		[]string{"status"},
	)
)

// RecordRequest records HTTP request metrics.
func RecordRequest(method, path string, status int, duration float64) {
	code := strconv.Itoa(status)
	RequestDuration.WithLabelValues(method, path, code).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, code).Inc()
}

// RecordLLMStream records LLM streaming metrics.
func RecordLLMStream(provider, model string, duration float64) {
	LLMStreamDuration.WithLabelValues(provider, model).Observe(duration)
}

// RecordTurn records a finished turn.
func RecordTurn(status string, duration float64) {
	TurnsTotal.WithLabelValues(status).Inc()
	TurnDuration.Observe(duration)
}

// RecordFunctionCall records a dispatched function call.
func RecordFunctionCall(name string, success bool) {
	FunctionCallsTotal.WithLabelValues(name, strconv.FormatBool(success)).Inc()
}

// RecordConfirmation records a confirmation gate outcome.
func RecordConfirmation(resource, operation, outcome string) {
	ConfirmationOutcomes.WithLabelValues(resource, operation, outcome).Inc()
}

// IncrementSSEConnections increments active SSE connections.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements active SSE connections.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
