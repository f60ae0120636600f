package helix

import (
	"context"
	"errors"
	"net/http"

	"github.com/nerrad567/stream-lights-core/internal/metrics"
)

// EventSub subscription types used by the service.
const (
	TypeRewardRedemption = "channel.channel_points_custom_reward_redemption.add"
	TypeChatMessage      = "channel.chat.message"
)

const subscriptionsPath = "/eventsub/subscriptions"

// Condition is the EventSub condition object. Empty fields are omitted.
type Condition struct {
	BroadcasterUserID string `json:"broadcaster_user_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
}

// EventKind is one subscription the service wants on every session.
type EventKind struct {
	Type      string
	Version   string
	Condition Condition
}

type transport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id"`
}

type subscriptionRequest struct {
	Type      string    `json:"type"`
	Version   string    `json:"version"`
	Condition Condition `json:"condition"`
	Transport transport `json:"transport"`
}

// SubscriptionManagerOptions configures which kinds are subscribed.
type SubscriptionManagerOptions struct {
	// BroadcasterID is the channel whose events are wanted. Required.
	BroadcasterID string

	// UserID is the reading user for channel.chat.message. Defaults to
	// BroadcasterID.
	UserID string

	// Chat adds the channel.chat.message subscription.
	Chat bool

	Logger Logger
}

// SubscriptionManager creates EventSub subscriptions bound to a websocket
// session.
type SubscriptionManager struct {
	client *Client
	kinds  []EventKind
	logger Logger
}

// NewSubscriptionManager creates a manager that subscribes the reward
// redemption kind and, if enabled, the chat message kind.
func NewSubscriptionManager(client *Client, opts SubscriptionManagerOptions) (*SubscriptionManager, error) {
	if client == nil {
		return nil, errors.New("helix: client is required")
	}
	if opts.BroadcasterID == "" {
		return nil, errors.New("helix: broadcaster id is required")
	}
	if opts.UserID == "" {
		opts.UserID = opts.BroadcasterID
	}

	kinds := []EventKind{{
		Type:      TypeRewardRedemption,
		Version:   "1",
		Condition: Condition{BroadcasterUserID: opts.BroadcasterID},
	}}
	if opts.Chat {
		kinds = append(kinds, EventKind{
			Type:      TypeChatMessage,
			Version:   "1",
			Condition: Condition{BroadcasterUserID: opts.BroadcasterID, UserID: opts.UserID},
		})
	}

	return &SubscriptionManager{client: client, kinds: kinds, logger: opts.Logger}, nil
}

// Kinds returns a copy of the configured subscription kinds.
func (m *SubscriptionManager) Kinds() []EventKind {
	out := make([]EventKind, len(m.kinds))
	copy(out, m.kinds)
	return out
}

// Subscribe requests one subscription for sessionID.
//
// Returns nil when Twitch accepted the subscription or reports that it
// already exists (409). Any other status is a *SubscriptionError.
func (m *SubscriptionManager) Subscribe(ctx context.Context, sessionID string, kind EventKind) error {
	body := subscriptionRequest{
		Type:      kind.Type,
		Version:   kind.Version,
		Condition: kind.Condition,
		Transport: transport{Method: "websocket", SessionID: sessionID},
	}

	status, data, err := m.client.postJSON(ctx, subscriptionsPath, body)
	if err != nil {
		metrics.Subscriptions.WithLabelValues(kind.Type, "error").Inc()
		return err
	}

	switch {
	case status == http.StatusConflict:
		metrics.Subscriptions.WithLabelValues(kind.Type, "exists").Inc()
		return nil
	case status >= 200 && status < 300:
		metrics.Subscriptions.WithLabelValues(kind.Type, "accepted").Inc()
		return nil
	default:
		metrics.Subscriptions.WithLabelValues(kind.Type, "rejected").Inc()
		return &SubscriptionError{Type: kind.Type, Status: status, Body: string(data)}
	}
}

// SubscribeAll subscribes every configured kind on sessionID. Rejections are
// logged and not retried; the kind stays unobserved until the next session.
// The returned error joins every failure.
func (m *SubscriptionManager) SubscribeAll(ctx context.Context, sessionID string) error {
	var errs []error
	for _, kind := range m.kinds {
		if err := m.Subscribe(ctx, sessionID, kind); err != nil {
			if m.logger != nil {
				m.logger.Error("eventsub subscription failed", "type", kind.Type, "error", err)
			}
			errs = append(errs, err)
			continue
		}
		if m.logger != nil {
			m.logger.Info("eventsub subscription active", "type", kind.Type, "session_id", sessionID)
		}
	}
	return errors.Join(errs...)
}
