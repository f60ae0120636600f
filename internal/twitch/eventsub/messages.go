package eventsub

import (
	"encoding/json"
	"time"
)

// MessageKind is the closed set of EventSub message types.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindWelcome
	KindKeepalive
	KindReconnect
	KindNotification
	KindRevocation
)

// ParseMessageKind maps a metadata.message_type value to a MessageKind.
// Unrecognised values map to KindUnknown.
func ParseMessageKind(s string) MessageKind {
	switch s {
	case "session_welcome":
		return KindWelcome
	case "session_keepalive":
		return KindKeepalive
	case "session_reconnect":
		return KindReconnect
	case "notification":
		return KindNotification
	case "revocation":
		return KindRevocation
	default:
		return KindUnknown
	}
}

// String returns the wire name of the kind.
func (k MessageKind) String() string {
	switch k {
	case KindWelcome:
		return "session_welcome"
	case KindKeepalive:
		return "session_keepalive"
	case KindReconnect:
		return "session_reconnect"
	case KindNotification:
		return "notification"
	case KindRevocation:
		return "revocation"
	default:
		return "unknown"
	}
}

// Metadata is the envelope header present on every message.
type Metadata struct {
	MessageID           string    `json:"message_id"`
	MessageType         string    `json:"message_type"`
	MessageTimestamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type,omitempty"`
	SubscriptionVersion string    `json:"subscription_version,omitempty"`
}

// Envelope is a complete inbound message.
type Envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// SessionInfo is payload.session of welcome and reconnect messages.
type SessionInfo struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

// SubscriptionInfo is payload.subscription of notification and revocation
// messages.
type SubscriptionInfo struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type sessionPayload struct {
	Session SessionInfo `json:"session"`
}

type notificationPayload struct {
	Subscription SubscriptionInfo `json:"subscription"`
	Event        json.RawMessage  `json:"event"`
}

// Notification is a notification message handed to the NotificationHandler.
type Notification struct {
	MessageID        string
	SubscriptionType string
	Timestamp        time.Time
	Event            json.RawMessage
}
