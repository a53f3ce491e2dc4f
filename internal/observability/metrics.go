package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	transcriptionsTotal   *prometheus.CounterVec
	transcriptionDuration *prometheus.HistogramVec
	decodeDuration        *prometheus.HistogramVec
	modelLoadsTotal       *prometheus.CounterVec
	modelLoadDuration     *prometheus.HistogramVec
	tempCleanupFailures   prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecoach_http_requests_total",
				Help: "Total number of HTTP requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicecoach_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecoach_upstream_requests_total",
				Help: "Total requests to the language model, speech-to-text and text-to-speech services.",
			},
			[]string{"endpoint", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicecoach_upstream_request_duration_seconds",
				Help:    "Upstream request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		transcriptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecoach_transcriptions_total",
				Help: "Transcription requests by language and outcome (ok or error kind).",
			},
			[]string{"lang", "outcome"},
		),
		transcriptionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicecoach_transcription_duration_seconds",
				Help:    "End-to-end transcription pipeline duration in seconds.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			},
			[]string{"lang"},
		),
		decodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicecoach_decode_duration_seconds",
				Help:    "ffmpeg decode duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		modelLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicecoach_stt_model_loads_total",
				Help: "Speech-to-text model handle constructions by language.",
			},
			[]string{"lang"},
		),
		modelLoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicecoach_stt_model_load_duration_seconds",
				Help:    "Speech-to-text model handle construction time in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"lang"},
		),
		tempCleanupFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voicecoach_temp_cleanup_failures_total",
				Help: "Temporary files that could not be removed after a request.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.transcriptionsTotal,
		m.transcriptionDuration,
		m.decodeDuration,
		m.modelLoadsTotal,
		m.modelLoadDuration,
		m.tempCleanupFailures,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveUpstream(endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	statusLabel := strconv.Itoa(status)
	m.upstreamRequestsTotal.WithLabelValues(endpoint, statusLabel).Inc()
	m.upstreamDuration.WithLabelValues(endpoint, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) ObserveTranscription(lang, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	// Unsupported codes come straight from the client; keep label cardinality fixed.
	if lang != "pt" && lang != "en" {
		lang = "other"
	}
	m.transcriptionsTotal.WithLabelValues(lang, outcome).Inc()
	m.transcriptionDuration.WithLabelValues(lang).Observe(duration.Seconds())
}

func (m *Metrics) ObserveDecode(duration time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.decodeDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func (m *Metrics) ObserveModelLoad(lang string, duration time.Duration) {
	if m == nil {
		return
	}
	m.modelLoadsTotal.WithLabelValues(lang).Inc()
	m.modelLoadDuration.WithLabelValues(lang).Observe(duration.Seconds())
}

func (m *Metrics) IncTempCleanupFailure() {
	if m == nil {
		return
	}
	m.tempCleanupFailures.Inc()
}
