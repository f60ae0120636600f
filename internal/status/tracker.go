package status

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/stream-lights-core/internal/bridges/hue"
	"github.com/nerrad567/stream-lights-core/internal/twitch/eventsub"
)

// Health is the overall service status.
type Health string

// Health values.
const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthStarting Health = "starting"
	HealthStopping Health = "stopping"
)

// Connectivity reports whether an optional link is up.
type Connectivity interface {
	IsConnected() bool
}

// Snapshot is the status at one instant.
type Snapshot struct {
	Status        Health    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	Version       string    `json:"version"`
	SessionState  string    `json:"session_state"`
	SessionID     string    `json:"session_id,omitempty"`
	Registration  string    `json:"registration"`
	DeviceCount   int       `json:"device_count"`
	MQTTConnected *bool     `json:"mqtt_connected,omitempty"`
	Breaker       string    `json:"breaker,omitempty"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Timestamp     time.Time `json:"timestamp"`
}

// Tracker collects status from the running components.
//
// Thread Safety: all methods are safe for concurrent use.
type Tracker struct {
	version string
	clock   clockwork.Clock
	started time.Time

	mu           sync.RWMutex
	sessionState eventsub.State
	sessionID    string
	registration hue.RegistrationState
	deviceCount  int
	mqtt         Connectivity
	breaker      func() string
}

// NewTracker creates a Tracker. A nil clock uses the real clock.
func NewTracker(version string, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		version:      version,
		clock:        clock,
		started:      clock.Now(),
		sessionState: eventsub.StateConnecting,
		registration: hue.StateIdle,
	}
}

// SetSession records an EventSub state transition.
func (t *Tracker) SetSession(state eventsub.State, sessionID string) {
	t.mu.Lock()
	t.sessionState = state
	t.sessionID = sessionID
	t.mu.Unlock()
}

// SetRegistration records the bridge registration state.
func (t *Tracker) SetRegistration(state hue.RegistrationState) {
	t.mu.Lock()
	t.registration = state
	t.mu.Unlock()
}

// SetDeviceCount records how many bridge devices were resolved by name.
func (t *Tracker) SetDeviceCount(n int) {
	t.mu.Lock()
	t.deviceCount = n
	t.mu.Unlock()
}

// SetMQTT attaches the MQTT link. Without it MQTT is left out of the
// snapshot and does not affect health.
func (t *Tracker) SetMQTT(c Connectivity) {
	t.mu.Lock()
	t.mqtt = c
	t.mu.Unlock()
}

// SetBreaker attaches a function reporting the bridge circuit breaker state.
func (t *Tracker) SetBreaker(fn func() string) {
	t.mu.Lock()
	t.breaker = fn
	t.mu.Unlock()
}

// Snapshot returns the current status. Health is degraded when the session
// is not subscribed, the bridge is not registered, MQTT is attached but
// down, or the breaker is not closed. The first reason found is reported.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	snap := Snapshot{
		Status:        HealthHealthy,
		Version:       t.version,
		SessionState:  t.sessionState.String(),
		SessionID:     t.sessionID,
		Registration:  t.registration.String(),
		DeviceCount:   t.deviceCount,
		UptimeSeconds: int64(now.Sub(t.started).Seconds()),
		Timestamp:     now.UTC(),
	}
	if t.mqtt != nil {
		connected := t.mqtt.IsConnected()
		snap.MQTTConnected = &connected
	}
	if t.breaker != nil {
		snap.Breaker = t.breaker()
	}

	switch {
	case t.registration != hue.StateRegistered:
		snap.Status, snap.Reason = HealthDegraded, "bridge not registered"
	case t.sessionState != eventsub.StateSubscribed:
		snap.Status, snap.Reason = HealthDegraded, "eventsub session "+snap.SessionState
	case snap.MQTTConnected != nil && !*snap.MQTTConnected:
		snap.Status, snap.Reason = HealthDegraded, "MQTT disconnected"
	case snap.Breaker != "" && snap.Breaker != "closed":
		snap.Status, snap.Reason = HealthDegraded, "bridge breaker "+snap.Breaker
	}
	return snap
}
