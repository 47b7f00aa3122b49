// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pipelineMessagesTotal     *prometheus.CounterVec
	pipelineRetriesTotal      *prometheus.CounterVec
	pipelineDeadLettersTotal  *prometheus.CounterVec
	pipelineActiveWorkers     prometheus.Gauge
	sweeperRunsTotal          prometheus.Counter
	sweeperRequeuedTotal      prometheus.Counter
	sweeperPermanentTotal     *prometheus.CounterVec
	sweeperRepublishFailTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pipelineMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_messages_total",
				Help: "Total number of messages processed, labeled by queue and outcome.",
			},
			[]string{"queue", "outcome"},
		)

		pipelineRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_retries_total",
				Help: "Total number of local retry attempts, labeled by queue.",
			},
			[]string{"queue"},
		)

		pipelineDeadLettersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_dead_letters_total",
				Help: "Total number of messages routed to the dead-letter queue, labeled by origin queue.",
			},
			[]string{"queue"},
		)

		pipelineActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_workers",
				Help: "Number of consumer workers currently processing a message.",
			},
		)

		sweeperRunsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeper_runs_total",
				Help: "Total number of completed dead-letter sweep cycles.",
			},
		)

		sweeperRequeuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeper_requeued_total",
				Help: "Total number of dead-lettered messages republished to their origin queue.",
			},
		)

		sweeperPermanentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeper_permanent_failures_total",
				Help: "Total number of permanent-failure records created, labeled by origin queue.",
			},
			[]string{"queue"},
		)

		sweeperRepublishFailTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeper_republish_failures_total",
				Help: "Total number of sweeper republish attempts that failed and returned the message to the dead-letter queue.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveMessage counts a processed message for the given queue and outcome.
func ObserveMessage(queue, outcome string) {
	pipelineMessagesTotal.WithLabelValues(queue, outcome).Inc()
}

// ObserveRetry counts a local retry attempt on the given queue.
func ObserveRetry(queue string) {
	pipelineRetriesTotal.WithLabelValues(queue).Inc()
}

// ObserveDeadLetter counts a message dead-lettered from the given queue.
func ObserveDeadLetter(queue string) {
	pipelineDeadLettersTotal.WithLabelValues(queue).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	pipelineActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	pipelineActiveWorkers.Dec()
}

// ObserveSweepRun counts one completed sweep cycle.
func ObserveSweepRun() {
	sweeperRunsTotal.Inc()
}

// ObserveSweepRequeue counts a message republished by the sweeper.
func ObserveSweepRequeue() {
	sweeperRequeuedTotal.Inc()
}

// ObservePermanentFailure counts a permanent-failure record for the origin queue.
func ObservePermanentFailure(queue string) {
	sweeperPermanentTotal.WithLabelValues(queue).Inc()
}

// ObserveRepublishFailure counts a failed sweeper republish.
func ObserveRepublishFailure() {
	sweeperRepublishFailTotal.Inc()
}
