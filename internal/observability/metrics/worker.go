package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics is bound to one service label so it can be handed to the
// processor as its observer.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	reapedTotal     *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between document creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	reapedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reaper",
			Name:      "documents_reaped_total",
			Help:      "Stale documents driven to failed by the reaper.",
		},
		[]string{"service"},
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried dependency calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, reapedTotal, retriesTotal, breakerState)

	return &WorkerMetrics{
		service:         service,
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		reapedTotal:     reapedTotal,
		retriesTotal:    retriesTotal,
		breakerState:    breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishDocument(outcome string, duration time.Duration) {
	m.processInFlight.Dec()
	if outcome == "" {
		outcome = "unknown"
	}
	m.processTotal.WithLabelValues(m.service, outcome).Inc()
	m.processDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) AddReaped(n int) {
	if n <= 0 {
		return
	}
	m.reapedTotal.WithLabelValues(m.service).Add(float64(n))
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

// ObserveBreakerState treats half-open as open: calls are still being shed.
func (m *WorkerMetrics) ObserveBreakerState(operation, state string) {
	value := 1.0
	if state == "closed" {
		value = 0
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
