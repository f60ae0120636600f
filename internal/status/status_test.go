package status

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/stream-lights-core/internal/bridges/hue"
	"github.com/nerrad567/stream-lights-core/internal/twitch/eventsub"
)

type fakeLink struct{ connected bool }

func (f fakeLink) IsConnected() bool { return f.connected }

func healthyTracker(clock clockwork.Clock) *Tracker {
	t := NewTracker("1.2.3", clock)
	t.SetRegistration(hue.StateRegistered)
	t.SetSession(eventsub.StateSubscribed, "session-1")
	t.SetDeviceCount(2)
	return t
}

func TestTracker_Snapshot(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Tracker)
		wantStatus Health
		wantReason string
	}{
		{name: "healthy", mutate: func(*Tracker) {}, wantStatus: HealthHealthy},
		{
			name:       "not registered",
			mutate:     func(t *Tracker) { t.SetRegistration(hue.StatePolling) },
			wantStatus: HealthDegraded,
			wantReason: "bridge not registered",
		},
		{
			name:       "session reconnecting",
			mutate:     func(t *Tracker) { t.SetSession(eventsub.StateReconnecting, "session-1") },
			wantStatus: HealthDegraded,
			wantReason: "eventsub session reconnecting",
		},
		{
			name:       "mqtt down",
			mutate:     func(t *Tracker) { t.SetMQTT(fakeLink{connected: false}) },
			wantStatus: HealthDegraded,
			wantReason: "MQTT disconnected",
		},
		{
			name:       "breaker open",
			mutate:     func(t *Tracker) { t.SetBreaker(func() string { return "open" }) },
			wantStatus: HealthDegraded,
			wantReason: "bridge breaker open",
		},
		{
			name: "mqtt up and breaker closed",
			mutate: func(t *Tracker) {
				t.SetMQTT(fakeLink{connected: true})
				t.SetBreaker(func() string { return "closed" })
			},
			wantStatus: HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := clockwork.NewFakeClock()
			tracker := healthyTracker(clock)
			tt.mutate(tracker)
			clock.Advance(90 * time.Second)

			snap := tracker.Snapshot()
			if snap.Status != tt.wantStatus || snap.Reason != tt.wantReason {
				t.Errorf("status = %q (%q), want %q (%q)", snap.Status, snap.Reason, tt.wantStatus, tt.wantReason)
			}
			if snap.UptimeSeconds != 90 {
				t.Errorf("UptimeSeconds = %d, want 90", snap.UptimeSeconds)
			}
			if snap.Version != "1.2.3" || snap.DeviceCount != 2 {
				t.Errorf("snapshot = %+v", snap)
			}
		})
	}
}

func TestTracker_Defaults(t *testing.T) {
	snap := NewTracker("dev", nil).Snapshot()
	if snap.SessionState != "connecting" || snap.Registration != "idle" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.MQTTConnected != nil {
		t.Error("MQTTConnected should be omitted without an MQTT link")
	}
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []published
}

func (m *mockPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) waitFor(t *testing.T, n int) []published {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		msgs := append([]published(nil), m.messages...)
		m.mu.Unlock()
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("published %d messages, want %d", len(msgs), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func decode(t *testing.T, p published) Snapshot {
	t.Helper()
	var snap Snapshot
	if err := json.Unmarshal(p.payload, &snap); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	return snap
}

func TestHealthReporter_Lifecycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pub := &mockPublisher{connected: true}
	reporter := NewHealthReporter(HealthReporterConfig{
		Tracker:   healthyTracker(clock),
		Publisher: pub,
		Topic:     "streamlights/system/health",
		Interval:  10 * time.Second,
		Clock:     clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter.Start(ctx)

	msgs := pub.waitFor(t, 1)
	if msgs[0].topic != "streamlights/system/health" || !msgs[0].retained {
		t.Errorf("first message = %+v", msgs[0])
	}
	if snap := decode(t, msgs[0]); snap.Status != HealthHealthy {
		t.Errorf("status = %q, want healthy", snap.Status)
	}

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	clock.Advance(10 * time.Second)
	pub.waitFor(t, 2)

	reporter.Stop()
	reporter.Stop()

	msgs = pub.waitFor(t, 3)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if snap := decode(t, msgs[2]); snap.Status != HealthStopping {
		t.Errorf("final status = %q, want stopping", snap.Status)
	}
}

func TestHealthReporter_SkipsWhileDisconnected(t *testing.T) {
	pub := &mockPublisher{connected: false}
	reporter := NewHealthReporter(HealthReporterConfig{
		Tracker:   NewTracker("dev", nil),
		Publisher: pub,
		Topic:     "streamlights/system/health",
	})

	if err := reporter.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}
	if len(pub.messages) != 0 {
		t.Errorf("published %d messages while disconnected", len(pub.messages))
	}
}
