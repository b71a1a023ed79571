package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline holds the ingestion-side prometheus metrics behind a private
// registry, served on the metrics port.
type Pipeline struct {
	registry *prometheus.Registry

	ingestedTotal     *prometheus.CounterVec
	retryAttempts     prometheus.Counter
	deadLetters       prometheus.Counter
	tasksInFlight     prometheus.Gauge
	taskDuration      prometheus.Histogram
	estadoTransitions *prometheus.CounterVec
}

func NewPipeline(service string) *Pipeline {
	registry := prometheus.NewRegistry()

	ingestedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "ingesta",
			Subsystem:   "pipeline",
			Name:        "ingested_total",
			Help:        "Processed ingestion tasks by outcome.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"outcome"},
	)
	retryAttempts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "ingesta",
			Subsystem:   "pipeline",
			Name:        "retry_attempts_total",
			Help:        "Backoff retries scheduled for ingestion tasks.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	deadLetters := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "ingesta",
			Subsystem:   "pipeline",
			Name:        "dead_letters_total",
			Help:        "Tasks that exhausted their retry budget.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	tasksInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "ingesta",
			Subsystem:   "pipeline",
			Name:        "tasks_in_flight",
			Help:        "Ingestion tasks currently being processed.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	taskDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "ingesta",
			Subsystem:   "pipeline",
			Name:        "task_duration_seconds",
			Help:        "Duration of one ingestion attempt.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	estadoTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "ingesta",
			Subsystem:   "pipeline",
			Name:        "estado_transitions_total",
			Help:        "Documents entering each review state.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"estado"},
	)

	registry.MustRegister(ingestedTotal, retryAttempts, deadLetters, tasksInFlight, taskDuration, estadoTransitions)

	return &Pipeline{
		registry:          registry,
		ingestedTotal:     ingestedTotal,
		retryAttempts:     retryAttempts,
		deadLetters:       deadLetters,
		tasksInFlight:     tasksInFlight,
		taskDuration:      taskDuration,
		estadoTransitions: estadoTransitions,
	}
}

func (m *Pipeline) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Pipeline) TaskStarted() {
	m.tasksInFlight.Inc()
}

func (m *Pipeline) TaskFinished(duration time.Duration) {
	m.tasksInFlight.Dec()
	m.taskDuration.Observe(duration.Seconds())
}

func (m *Pipeline) IngestOutcome(outcome string) {
	m.ingestedTotal.WithLabelValues(outcome).Inc()
}

func (m *Pipeline) RetryScheduled() {
	m.retryAttempts.Inc()
}

func (m *Pipeline) DeadLettered() {
	m.deadLetters.Inc()
}

func (m *Pipeline) EstadoTransition(estado string) {
	m.estadoTransitions.WithLabelValues(estado).Inc()
}
