package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Queue Router.
var (
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_tasks_enqueued_total",
		Help: "Tasks enqueued per lane, split by created/duplicate",
	}, []string{"lane", "result"})

	TasksCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_tasks_cancelled_total",
		Help: "Delayed tasks removed from a lane before firing",
	}, []string{"lane"})

	TasksPromoted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_tasks_promoted_total",
		Help: "Delayed tasks handed over to the broker",
	}, []string{"lane"})

	BrokerHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kickoff_broker_healthy",
		Help: "1 if the queue router considers its brokers healthy",
	})

	RabbitMQConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kickoff_rabbitmq_connected",
		Help: "1 while the RabbitMQ connection is up",
	})

	TasksPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kickoff_tasks_pending",
		Help: "Delayed tasks waiting to fire per lane",
	}, []string{"lane"})
)

// Метрики воркеров.
var (
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_tasks_executed_total",
		Help: "Task executions per lane and outcome",
	}, []string{"lane", "outcome"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kickoff_task_duration_seconds",
		Help:    "Task execution duration including in-process retries",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"lane"})

	TasksRedelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_tasks_redelivered_total",
		Help: "Task deliveries the broker flagged as redelivered",
	}, []string{"lane"})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_dead_letters_total",
		Help: "Tasks moved to the dead letter archive",
	}, []string{"lane"})
)

// Метрики Resilience Layer.
var (
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_provider_failures_total",
		Help: "Provider failures by classified kind",
	}, []string{"provider", "kind"})

	ProviderDisabled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_provider_auto_disabled_total",
		Help: "Provider auto-disable transitions",
	}, []string{"provider"})

	ProviderRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_provider_recovered_total",
		Help: "Providers re-enabled after cooldown",
	}, []string{"provider"})
)

// Метрики планировщика и оркестратора.
var (
	ReconcileScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kickoff_reconcile_scheduled_total",
		Help: "Tasks scheduled by catch-up reconciliation",
	})

	ReconcileStuckFixed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kickoff_reconcile_stuck_fixed_total",
		Help: "Stuck pre-live matches force-resumed",
	})

	WavePairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kickoff_wave_pairs_total",
		Help: "Match/provider pairs processed by prediction waves",
	}, []string{"provider", "outcome"})

	WaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kickoff_wave_duration_seconds",
		Help:    "Wall-clock duration of prediction waves",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
	})
)
