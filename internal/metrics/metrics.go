// Package metrics declares the Prometheus collectors for Stream Lights.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EventSub session metrics
var (
	// MessagesReceived counts complete websocket messages by message_type.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlights_eventsub_messages_total",
			Help: "EventSub websocket messages received by message type",
		},
		[]string{"kind"},
	)

	// SessionReconnects counts session_reconnect hand-overs.
	SessionReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "streamlights_eventsub_reconnects_total",
			Help: "Session reconnects requested by the server",
		},
	)

	// SessionState is the current session state (see eventsub.State).
	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamlights_eventsub_session_state",
			Help: "Current EventSub session state (0=connecting, 1=waiting_for_welcome, 2=subscribed, 3=reconnecting, 4=closed)",
		},
	)

	// Subscriptions counts subscription requests by type and result.
	Subscriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlights_eventsub_subscriptions_total",
			Help: "EventSub subscription requests by subscription type and result",
		},
		[]string{"type", "result"},
	)
)

// Dispatch metrics
var (
	// AudienceActions counts audience actions by source, action and outcome.
	AudienceActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlights_audience_actions_total",
			Help: "Audience actions by source, action and outcome",
		},
		[]string{"source", "action", "outcome"},
	)

	// ChatReplies counts corrective chat messages sent.
	ChatReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlights_chat_replies_total",
			Help: "Corrective chat replies by result",
		},
		[]string{"result"},
	)
)

// Hue bridge metrics
var (
	// DeviceCommands counts bridge commands by action and result.
	DeviceCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlights_hue_commands_total",
			Help: "Hue bridge commands by action and result",
		},
		[]string{"action", "result"},
	)

	// DeviceCommandDuration tracks bridge command latency in seconds.
	DeviceCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamlights_hue_command_duration_seconds",
			Help:    "Hue bridge command duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"action"},
	)

	// RegistrationAttempts counts link-button registration attempts by result.
	RegistrationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamlights_hue_registration_attempts_total",
			Help: "Hue link-button registration attempts by result",
		},
		[]string{"result"},
	)

	// CircuitBreakerState tracks the bridge breaker (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamlights_hue_circuit_breaker_state",
			Help: "Hue command circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)
)
