package hue

import (
	"errors"
	"fmt"
)

// Domain errors for the Hue bridge package.
var (
	// ErrBridgeAddressMissing is returned when registration is attempted
	// without a bridge address. It is a configuration fault and is not retried.
	ErrBridgeAddressMissing = errors.New("hue: bridge address missing")

	// ErrLinkButtonNotPressed is returned by a registration attempt while
	// the bridge is waiting for its link button (bridge error type 101).
	ErrLinkButtonNotPressed = errors.New("hue: link button not pressed")

	// ErrRegistrationFailed wraps unexpected bridge or network failures
	// during registration.
	ErrRegistrationFailed = errors.New("hue: registration failed")

	// ErrRegistrationTimedOut is returned when the link button was not
	// pressed within the configured maximum duration.
	ErrRegistrationTimedOut = errors.New("hue: registration timed out")

	// ErrAlreadyCompleted is returned when a poller is completed twice.
	ErrAlreadyCompleted = errors.New("hue: registration already completed")

	// ErrAlreadyRunning is returned when Run is called on a poller that has
	// already been started.
	ErrAlreadyRunning = errors.New("hue: registration poller already running")

	// ErrNotRegistered is returned when a client is created without an
	// application key.
	ErrNotRegistered = errors.New("hue: application not registered")

	// ErrCommandFailed is returned when the bridge rejects a command.
	ErrCommandFailed = errors.New("hue: command failed")

	// ErrInvalidColor is returned when a color is not six hex digits.
	ErrInvalidColor = errors.New("hue: invalid color")
)

// linkButtonNotPressed is the bridge error type for an unpressed link button.
const linkButtonNotPressed = 101

// BridgeError is an error object returned in a bridge response body.
type BridgeError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("hue: bridge error %d: %s", e.Type, e.Description)
}
