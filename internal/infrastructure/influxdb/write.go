package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAudienceAction = "audience_action"
	MeasurementSessionState   = "session_state"
)

// noLamp tags actions that never resolved a lamp.
const noLamp = "none"

// WriteAudienceAction queues one audience_action point.
//
// The write is non-blocking and dropped silently after Close. An empty
// lamp is tagged "none".
//
// Parameters:
//   - source: "reward", "chat" or "mqtt"
//   - action: Action kind, e.g. "color" or "power"
//   - lamp: Lamp key the action targeted
//   - outcome: "executed", "rejected" or "failed"
//   - latencyMS: Time from receipt to lamp response, in milliseconds
//   - at: Point timestamp; zero means now
//
// Example:
//
//	client.WriteAudienceAction("reward", "color", "left", "executed", 42.5, time.Now())
func (c *Client) WriteAudienceAction(source, action, lamp, outcome string, latencyMS float64, at time.Time) {
	if lamp == "" {
		lamp = noLamp
	}
	c.writePoint(MeasurementAudienceAction,
		map[string]string{
			"source":  source,
			"action":  action,
			"lamp":    lamp,
			"outcome": outcome,
		},
		map[string]any{
			"latency_ms": latencyMS,
		},
		at,
	)
}

// WriteSessionState queues a session_state point for an EventSub state
// transition.
//
// Parameters:
//   - state: New session state, stored as a tag so transitions can be
//     counted per state
//   - at: Point timestamp; zero means now
func (c *Client) WriteSessionState(state string, at time.Time) {
	c.writePoint(MeasurementSessionState,
		map[string]string{"state": state},
		map[string]any{"count": 1},
		at,
	)
}

// writePoint stamps and queues a point unless the client is closed.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
