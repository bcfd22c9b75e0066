// Package metrics exposes Prometheus gauges/counters for the ops surface
// (§A "Metrics" in the expanded spec): session count, channel count,
// in-flight transfers, voice sessions, and AccessGate hit/miss counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexusd",
		Name:      "sessions_active",
		Help:      "Number of live BBS sessions.",
	})

	ChannelsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexusd",
		Name:      "channels_active",
		Help:      "Number of live chat channels.",
	})

	TransfersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexusd",
		Name:      "transfers_active",
		Help:      "Number of in-flight file transfers.",
	})

	VoiceSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nexusd",
		Name:      "voice_sessions_active",
		Help:      "Number of live voice relay sessions.",
	})

	AccessGateDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexusd",
		Name:      "access_gate_decisions_total",
		Help:      "AccessGate lookup outcomes by decision.",
	}, []string{"decision"})

	FramesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexusd",
		Name:      "frames_processed_total",
		Help:      "Frames processed by type.",
	}, []string{"type"})

	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexusd",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})
)

// Register adds every collector to reg. Call once at startup.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		SessionsActive,
		ChannelsActive,
		TransfersActive,
		VoiceSessionsActive,
		AccessGateDecisions,
		FramesProcessed,
		LoginAttempts,
	)
}
