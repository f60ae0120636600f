//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	c, err := Connect(integrationConfig(clientID))
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // Test cleanup
	return c
}

func TestIntegration_CommandRoundtrip(t *testing.T) {
	c := connectOrSkip(t, "streamlights-it-commands")

	type command struct{ lamp, text string }
	received := make(chan command, 1)
	if err := c.SubscribeCommands(func(lamp, text string) error {
		received <- command{lamp, text}
		return nil
	}); err != nil {
		t.Fatalf("SubscribeCommands() error = %v", err)
	}
	if c.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount = %d, want 1", c.SubscriptionCount())
	}

	if err := c.Publish(Topics{}.Command("left"), []byte("color red"), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got.lamp != "left" || got.text != "color red" {
			t.Errorf("received %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command not received")
	}

	if err := c.Unsubscribe(Topics{}.AllCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount = %d, want 0", c.SubscriptionCount())
	}
}

func TestIntegration_SessionStateRetained(t *testing.T) {
	pub := connectOrSkip(t, "streamlights-it-state-pub")
	if err := pub.PublishSessionState("subscribed", "session-1"); err != nil {
		t.Fatalf("PublishSessionState() error = %v", err)
	}

	// A late subscriber still sees the retained state.
	sub := connectOrSkip(t, "streamlights-it-state-sub")
	received := make(chan []byte, 1)
	if err := sub.Subscribe(Topics{}.SessionState(), 1, func(_ string, payload []byte) error {
		select {
		case received <- payload:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case payload := <-received:
		var msg SessionStateMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decoding state: %v", err)
		}
		if msg.State != "subscribed" || msg.SessionID != "session-1" {
			t.Errorf("state = %+v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retained state not received")
	}
}

func TestIntegration_OnConnectCallback(t *testing.T) {
	c := connectOrSkip(t, "streamlights-it-callbacks")
	c.SetOnConnect(func() {})
	c.SetOnDisconnect(func(error) {})
	c.SetLogger(&recordingLogger{})

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
