package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/stream-lights-core/internal/audit"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/mqtt"
)

// Action outcomes.
const (
	OutcomeExecuted = audit.OutcomeExecuted
	OutcomeRejected = audit.OutcomeRejected
	OutcomeFailed   = audit.OutcomeFailed
)

// Action is one audience action after it was executed or rejected.
type Action struct {
	CorrelationID string
	Source        string
	User          string
	Action        string
	Lamp          string
	DeviceID      string
	Value         string
	Outcome       string
	Error         string
	At            time.Time
	Latency       time.Duration
}

// ActionSink receives every executed or rejected action. Failures are
// logged by the dispatcher and never affect the session.
type ActionSink interface {
	RecordAction(ctx context.Context, a Action) error
}

// AuditSink writes actions to the command log.
type AuditSink struct {
	repo audit.Repository
}

// NewAuditSink creates a sink over the command log repository.
func NewAuditSink(repo audit.Repository) *AuditSink {
	return &AuditSink{repo: repo}
}

// RecordAction inserts a command_log row.
func (s *AuditSink) RecordAction(ctx context.Context, a Action) error {
	rec := &audit.Record{
		CorrelationID: a.CorrelationID,
		Source:        a.Source,
		User:          a.User,
		Action:        a.Action,
		Lamp:          a.Lamp,
		Value:         a.Value,
		Outcome:       a.Outcome,
		Error:         a.Error,
		CreatedAt:     a.At.UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("audit sink: %w", err)
	}
	return nil
}

// Publisher publishes MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// actionMessage is the JSON payload mirrored to MQTT.
type actionMessage struct {
	CorrelationID string    `json:"correlation_id"`
	Source        string    `json:"source"`
	User          string    `json:"user,omitempty"`
	Action        string    `json:"action"`
	Lamp          string    `json:"lamp,omitempty"`
	Value         string    `json:"value,omitempty"`
	Outcome       string    `json:"outcome"`
	Error         string    `json:"error,omitempty"`
	LatencyMS     float64   `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// MQTTSink mirrors actions to streamlights/action/{lamp}.
type MQTTSink struct {
	pub Publisher
	qos byte
}

// NewMQTTSink creates a sink publishing with qos.
func NewMQTTSink(pub Publisher, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, qos: qos}
}

// RecordAction publishes the action as JSON.
func (s *MQTTSink) RecordAction(_ context.Context, a Action) error {
	payload, err := json.Marshal(actionMessage{
		CorrelationID: a.CorrelationID,
		Source:        a.Source,
		User:          a.User,
		Action:        a.Action,
		Lamp:          a.Lamp,
		Value:         a.Value,
		Outcome:       a.Outcome,
		Error:         a.Error,
		LatencyMS:     latencyMS(a.Latency),
		Timestamp:     a.At.UTC(),
	})
	if err != nil {
		return fmt.Errorf("mqtt sink: encoding action: %w", err)
	}

	lamp := a.Lamp
	if lamp == "" {
		lamp = "none"
	}
	if err := s.pub.Publish(mqtt.Topics{}.Action(lamp), payload, s.qos, false); err != nil {
		return fmt.Errorf("mqtt sink: %w", err)
	}
	return nil
}

// PointWriter writes audience_action points.
type PointWriter interface {
	WriteAudienceAction(source, action, lamp, outcome string, latencyMS float64, at time.Time)
}

// InfluxSink records action telemetry. Writes are batched by the client.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink creates a telemetry sink.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// RecordAction queues one point; it never fails.
func (s *InfluxSink) RecordAction(_ context.Context, a Action) error {
	s.w.WriteAudienceAction(a.Source, a.Action, a.Lamp, a.Outcome, latencyMS(a.Latency), a.At)
	return nil
}

func latencyMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
