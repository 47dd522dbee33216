package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_intents_created_total",
		Help: "The total number of created intents",
	}, []string{"rail_type"})

	SolutionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "railsettle_solutions_submitted_total",
		Help: "The total number of solutions submitted by solvers",
	})

	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_transitions_total",
		Help: "The total number of applied intent state transitions",
	}, []string{"from", "to"})

	TransitionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_transition_failures_total",
		Help: "Rejected intent state transitions by target state and reason",
	}, []string{"to", "reason"})

	ChainCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_chain_calls_total",
		Help: "Chain collaborator calls by operation and status",
	}, []string{"chain_id", "operation", "status"})

	ChainCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railsettle_chain_call_seconds",
		Help:    "Time taken by chain collaborator calls, including waiting for the receipt",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms up to ~2 minutes
	}, []string{"chain_id", "operation"})

	ChainErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_chain_errors_total",
		Help: "Chain collaborator errors by classified type",
	}, []string{"chain_id", "error_type"})

	GasUsed = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railsettle_gas_used",
		Help:    "Gas used by protocol transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	}, []string{"chain_id", "operation"})

	GasPrice = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "railsettle_gas_price_gwei",
		Help: "Current gas price in gwei",
	}, []string{"chain_id"})

	CircuitBreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "railsettle_circuit_breaker_open",
		Help: "1 when the chain circuit breaker is open",
	}, []string{"chain_id"})

	PollTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_poll_timeouts_total",
		Help: "Polls that exhausted their attempts",
	}, []string{"operation"})

	PendingCommits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "railsettle_pending_commits",
		Help: "Intents queued for automatic commitment",
	})

	AutoCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_auto_commits_total",
		Help: "Automatic commitment attempts by outcome",
	}, []string{"status"})

	CommitProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railsettle_commit_processing_seconds",
		Help:    "Time from dequeue to commitment for queued intents",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10), // Start at 1s with 10 buckets doubling in size
	}, []string{"chain_id"})

	OracleValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_oracle_validations_total",
		Help: "Oracle claim validations by result and reason",
	}, []string{"result", "reason"})

	TasksPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "railsettle_tasks_published_total",
		Help: "Execution tasks published to the task store",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_events_published_total",
		Help: "Transition events published by status",
	}, []string{"status"})

	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railsettle_api_requests_total",
		Help: "API requests by route and status code",
	}, []string{"route", "code"})
)
