package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	chunksPerDoc    *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "awc",
			Subsystem: "worker",
			Name:      "document_process_total",
			Help:      "Total processed documents by terminal status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "awc",
			Subsystem: "worker",
			Name:      "document_process_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "awc",
			Subsystem: "worker",
			Name:      "document_process_in_flight",
			Help:      "Number of in-flight document processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chunksPerDoc := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "awc",
			Subsystem: "worker",
			Name:      "chunks_per_document",
			Help:      "Distribution of chunks produced per processed document.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, chunksPerDoc)

	return &WorkerMetrics{
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		chunksPerDoc:    chunksPerDoc,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartDocument and EndDocument bracket one processing attempt; terminal
// counters come from the processor itself via ProcessorRecorder.
func (m *WorkerMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) EndDocument() {
	m.processInFlight.Dec()
}

// ProcessorRecorder adapts the worker metric set to the processor's observer
// contract.
type ProcessorRecorder struct {
	metrics *WorkerMetrics
	service string
}

func (m *WorkerMetrics) ProcessorRecorder(service string) *ProcessorRecorder {
	return &ProcessorRecorder{metrics: m, service: service}
}

func (r *ProcessorRecorder) ObserveProcessing(status string, chunkCount int, seconds float64) {
	if status == "" {
		status = "unknown"
	}
	r.metrics.processTotal.WithLabelValues(r.service, status).Inc()
	r.metrics.processDuration.WithLabelValues(r.service, status).Observe(seconds)
	if chunkCount > 0 {
		r.metrics.chunksPerDoc.WithLabelValues(r.service).Observe(float64(chunkCount))
	}
}
