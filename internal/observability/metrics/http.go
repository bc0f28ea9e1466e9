package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	workflowRunsTotal    *prometheus.CounterVec
	workflowRefusedTotal *prometheus.CounterVec
	workflowDuration     *prometheus.HistogramVec
	evidenceChunks       *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "awc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "awc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "awc",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	workflowRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "awc",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Total completed workflow runs by intent and confidence.",
		},
		[]string{"service", "intent", "confidence"},
	)
	workflowRefusedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "awc",
			Subsystem: "workflow",
			Name:      "refusals_total",
			Help:      "Total workflow runs that refused to answer.",
		},
		[]string{"service", "intent"},
	)
	workflowDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "awc",
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "End-to-end workflow duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "intent"},
	)
	evidenceChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "awc",
			Subsystem: "workflow",
			Name:      "evidence_chunks",
			Help:      "Distribution of reranked evidence chunks per run.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		workflowRunsTotal,
		workflowRefusedTotal,
		workflowDuration,
		evidenceChunks,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		workflowRunsTotal:    workflowRunsTotal,
		workflowRefusedTotal: workflowRefusedTotal,
		workflowDuration:     workflowDuration,
		evidenceChunks:       evidenceChunks,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	case strings.HasPrefix(path, "/v1/audit/"):
		return "/v1/audit/{conversation_id}"
	default:
		return path
	}
}

// WorkflowRecorder adapts the metric set to the workflow's observer contract.
type WorkflowRecorder struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) WorkflowRecorder(service string) *WorkflowRecorder {
	return &WorkflowRecorder{metrics: m, service: service}
}

func (r *WorkflowRecorder) ObserveRun(intent string, confidence string, refused bool, seconds float64) {
	if intent == "" {
		intent = "unknown"
	}
	if confidence == "" {
		confidence = "unknown"
	}
	r.metrics.workflowRunsTotal.WithLabelValues(r.service, intent, confidence).Inc()
	r.metrics.workflowDuration.WithLabelValues(r.service, intent).Observe(seconds)
	if refused {
		r.metrics.workflowRefusedTotal.WithLabelValues(r.service, intent).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveEvidenceChunks(service string, count int) {
	m.evidenceChunks.WithLabelValues(service).Observe(float64(count))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
