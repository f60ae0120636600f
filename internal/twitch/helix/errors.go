package helix

import (
	"errors"
	"fmt"
)

// Domain errors for the Helix client.
var (
	// ErrNoCredentials is returned when neither an access token nor a
	// refresh token is available.
	ErrNoCredentials = errors.New("helix: no access or refresh token")

	// ErrMessageNotSent is returned when Twitch accepts a chat request but
	// drops the message.
	ErrMessageNotSent = errors.New("helix: chat message not sent")
)

// APIError is a non-2xx Helix response.
type APIError struct {
	Status  int
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("helix: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("helix: HTTP %d", e.Status)
}

// SubscriptionError reports a rejected subscription request.
type SubscriptionError struct {
	Type   string
	Status int
	Body   string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("helix: subscription %s rejected: HTTP %d: %s", e.Type, e.Status, e.Body)
}
