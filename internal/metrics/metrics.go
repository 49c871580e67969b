// Package metrics exposes Prometheus metrics for playback and the backend client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Utterance outcomes used as the "outcome" label.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// Metrics holds all collectors. Each instance owns its registry so tests and
// multiple coordinators never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Utterances      *prometheus.CounterVec
	FramesPublished prometheus.Counter
	FrameChanges    prometheus.Counter
	MetadataWait    prometheus.Histogram
	PlaybackActive  prometheus.Gauge

	BackendRequests *prometheus.CounterVec
	BackendDuration *prometheus.HistogramVec
	SpeechCache     *prometheus.CounterVec

	StreamClients prometheus.Gauge
}

// New creates a Metrics instance with all collectors registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "spritetalk"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		Utterances: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "utterances_total",
				Help:      "Utterances by playback outcome",
			},
			[]string{"outcome"},
		),

		FramesPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_published_total",
				Help:      "Frame updates published to subscribers",
			},
		),

		FrameChanges: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frame_changes_total",
				Help:      "Published updates whose sprite frame differed from the previous one",
			},
		),

		MetadataWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "audio_metadata_wait_seconds",
				Help:      "Time from submit until the audio source reported its duration",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		PlaybackActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "playback_active",
				Help:      "1 while an utterance is loading or playing",
			},
		),

		BackendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Backend API requests",
			},
			[]string{"endpoint", "status"},
		),

		BackendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Backend API request duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),

		SpeechCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "speech_cache_total",
				Help:      "Speech cache lookups by result",
			},
			[]string{"result"},
		),

		StreamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stream_clients",
				Help:      "Connected frame stream websocket clients",
			},
		),
	}
}

// Registry returns the registry backing this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUtterance counts an utterance outcome.
func (m *Metrics) RecordUtterance(outcome string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(outcome).Inc()
}

// RecordFrame counts a published update.
func (m *Metrics) RecordFrame(changed bool) {
	if m == nil {
		return
	}
	m.FramesPublished.Inc()
	if changed {
		m.FrameChanges.Inc()
	}
}

// RecordMetadataWait observes how long the audio took to become ready.
func (m *Metrics) RecordMetadataWait(d time.Duration) {
	if m == nil {
		return
	}
	m.MetadataWait.Observe(d.Seconds())
}

// SetPlaybackActive flips the active gauge.
func (m *Metrics) SetPlaybackActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.PlaybackActive.Set(1)
	} else {
		m.PlaybackActive.Set(0)
	}
}

// RecordBackend records a completed backend request.
func (m *Metrics) RecordBackend(endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequests.WithLabelValues(endpoint, status).Inc()
	m.BackendDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSpeechCache records a cache hit or miss.
func (m *Metrics) RecordSpeechCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.SpeechCache.WithLabelValues("hit").Inc()
	} else {
		m.SpeechCache.WithLabelValues("miss").Inc()
	}
}

// StreamClientConnected adjusts the connected client gauge.
func (m *Metrics) StreamClientConnected(delta int) {
	if m == nil {
		return
	}
	m.StreamClients.Add(float64(delta))
}
