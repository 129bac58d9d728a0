// Package metrics exposes Prometheus instrumentation for the tracking
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the collectors and their registry. Each Manager uses its
// own registry so tests can build isolated instances.
type Manager struct {
	registry *prometheus.Registry

	activeSessions   prometheus.Gauge
	framesReceived   prometheus.Counter
	detectionsMade   prometheus.Counter
	framesDropped    prometheus.Counter
	repsCompleted    prometheus.Counter
	inferenceLatency prometheus.Histogram
}

func New() *Manager {
	m := &Manager{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neiro",
			Name:      "active_sessions",
			Help:      "Number of live tracking sessions.",
		}),
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neiro",
			Name:      "frames_received_total",
			Help:      "Valid frames accepted for processing.",
		}),
		detectionsMade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neiro",
			Name:      "detections_total",
			Help:      "Frames on which the barbell was detected.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neiro",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by queue backpressure.",
		}),
		repsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neiro",
			Name:      "reps_completed_total",
			Help:      "Repetitions segmented across all sessions.",
		}),
		inferenceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neiro",
			Name:      "inference_latency_ms",
			Help:      "Detector inference latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
	}

	m.registry.MustRegister(
		m.activeSessions,
		m.framesReceived,
		m.detectionsMade,
		m.framesDropped,
		m.repsCompleted,
		m.inferenceLatency,
	)
	return m
}

func (m *Manager) SessionStarted() { m.activeSessions.Inc() }
func (m *Manager) SessionEnded()   { m.activeSessions.Dec() }

func (m *Manager) FrameReceived() { m.framesReceived.Inc() }
func (m *Manager) DetectionMade() { m.detectionsMade.Inc() }

func (m *Manager) FramesDropped(n int64) {
	if n > 0 {
		m.framesDropped.Add(float64(n))
	}
}

func (m *Manager) RepsCompleted(n int) {
	if n > 0 {
		m.repsCompleted.Add(float64(n))
	}
}

func (m *Manager) ObserveInference(ms float64) {
	m.inferenceLatency.Observe(ms)
}

// Handler serves the scrape endpoint for this manager's registry.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
