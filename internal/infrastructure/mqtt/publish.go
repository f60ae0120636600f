package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// maxPayloadSize bounds a published payload (1 MiB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits up to 5s for the broker.
//
// Parameters:
//   - topic: Destination topic (see Topics)
//   - payload: Message body, at most 1 MiB
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps it for new subscribers
//
// Returns:
//   - error: ErrInvalidTopic (empty or containing a wildcard), ErrInvalidQoS,
//     ErrNotConnected or ErrPublishFailed
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	// Brokers disconnect a client that publishes to a wildcard topic.
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcard in publish topic %q", ErrInvalidTopic, topic)
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes a retained message with the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}

// SessionStateMessage is the retained payload on streamlights/session/state.
type SessionStateMessage struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PublishSessionState publishes the EventSub session state, retained.
func (c *Client) PublishSessionState(state, sessionID string) error {
	payload, err := json.Marshal(SessionStateMessage{
		State:     state,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding session state: %w", ErrPublishFailed, err)
	}
	return c.PublishRetained(Topics{}.SessionState(), payload)
}
