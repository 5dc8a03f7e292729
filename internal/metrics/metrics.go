// Package metrics exposes Prometheus counters for the chat session engine.
// A nil *Metrics is valid and records nothing, so components can take one
// optionally.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomchat"

type Metrics struct {
	registry *prometheus.Registry

	turns         *prometheus.CounterVec
	turnFailures  *prometheus.CounterVec
	frames        prometheus.Counter
	droppedFrames prometheus.Counter
	interrupts    *prometheus.CounterVec
	voiceChunks   prometheus.Counter
	voiceFailures prometheus.Counter
	screenshots   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Turns issued to the agent, by kind (send or resume).",
		}, []string{"kind"}),
		turnFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_failures_total",
			Help:      "Turns that ended in a transport failure, by kind.",
		}, []string{"kind"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Stream frames decoded into events.",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_dropped_total",
			Help:      "Stream frames dropped because their JSON did not parse.",
		}),
		interrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interrupts_total",
			Help:      "Approval interrupts, by stage: raised, resolved, confirmed.",
		}, []string{"stage"}),
		voiceChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_chunks_played_total",
			Help:      "Voice chunks synthesized and played to completion.",
		}),
		voiceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_failures_total",
			Help:      "Utterances aborted by a synthesis or playback failure.",
		}),
		screenshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenshots_total",
			Help:      "Screenshot polls, by worker and status.",
		}, []string{"worker", "status"}),
	}

	m.registry.MustRegister(
		m.turns,
		m.turnFailures,
		m.frames,
		m.droppedFrames,
		m.interrupts,
		m.voiceChunks,
		m.voiceFailures,
		m.screenshots,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Turn(kind string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(kind).Inc()
}

func (m *Metrics) TurnFailed(kind string) {
	if m == nil {
		return
	}
	m.turnFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) Frame() {
	if m == nil {
		return
	}
	m.frames.Inc()
}

func (m *Metrics) FramesDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedFrames.Add(float64(n))
}

func (m *Metrics) Interrupt(stage string) {
	if m == nil {
		return
	}
	m.interrupts.WithLabelValues(stage).Inc()
}

func (m *Metrics) VoiceChunk() {
	if m == nil {
		return
	}
	m.voiceChunks.Inc()
}

func (m *Metrics) VoiceFailure() {
	if m == nil {
		return
	}
	m.voiceFailures.Inc()
}

func (m *Metrics) Screenshot(worker, status string) {
	if m == nil {
		return
	}
	m.screenshots.WithLabelValues(worker, status).Inc()
}
