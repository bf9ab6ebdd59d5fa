// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors on a private registry. A nil *Metrics is
// valid and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	framesReceived   prometheus.Counter
	framesProcessed  prometheus.Counter
	framesDropped    prometheus.Counter
	decodeFailures   prometheus.Counter
	detectionErrors  prometheus.Counter
	marksEmitted     prometheus.Counter
	recorderFailures prometheus.Counter
	openSessions     prometheus.Gauge
	frameSeconds     prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.framesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_frames_received_total",
		Help: "Frames received over the streaming endpoint.",
	})
	m.framesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_frames_processed_total",
		Help: "Frames that completed the identification pipeline.",
	})
	m.framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_frames_dropped_total",
		Help: "Frames coalesced away because a newer frame arrived first.",
	})
	m.decodeFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_frame_decode_failures_total",
		Help: "Frames skipped because the image data would not decode.",
	})
	m.detectionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_detection_errors_total",
		Help: "Model server detection calls that failed.",
	})
	m.marksEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marks_emitted_total",
		Help: "Attendance mark events persisted.",
	})
	m.recorderFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_recorder_failures_total",
		Help: "Mark events that failed to persist after retry.",
	})
	m.openSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_open_sessions",
		Help: "Currently open streaming sessions.",
	})
	m.frameSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_frame_processing_seconds",
		Help:    "End-to-end per-frame pipeline latency.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	m.registry.MustRegister(
		m.framesReceived, m.framesProcessed, m.framesDropped,
		m.decodeFailures, m.detectionErrors,
		m.marksEmitted, m.recorderFailures,
		m.openSessions, m.frameSeconds,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncFramesReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) IncFramesProcessed() {
	if m != nil {
		m.framesProcessed.Inc()
	}
}

func (m *Metrics) IncFramesDropped() {
	if m != nil {
		m.framesDropped.Inc()
	}
}

func (m *Metrics) IncDecodeFailures() {
	if m != nil {
		m.decodeFailures.Inc()
	}
}

func (m *Metrics) IncDetectionErrors() {
	if m != nil {
		m.detectionErrors.Inc()
	}
}

func (m *Metrics) IncMarksEmitted() {
	if m != nil {
		m.marksEmitted.Inc()
	}
}

func (m *Metrics) IncRecorderFailures() {
	if m != nil {
		m.recorderFailures.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.openSessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.openSessions.Dec()
	}
}

func (m *Metrics) ObserveFrameSeconds(seconds float64) {
	if m != nil {
		m.frameSeconds.Observe(seconds)
	}
}
