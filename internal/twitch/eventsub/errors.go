package eventsub

import "errors"

// Domain errors for the EventSub session.
var (
	// ErrConnectionFailed is returned when the websocket handshake fails,
	// including the dial to a reconnect URL.
	ErrConnectionFailed = errors.New("eventsub: connection failed")

	// ErrClosedPrematurely is returned when the socket drops without a
	// close frame.
	ErrClosedPrematurely = errors.New("eventsub: connection closed prematurely")

	// ErrKeepaliveTimeout is returned when neither a keepalive nor any
	// other message arrived within the keepalive window.
	ErrKeepaliveTimeout = errors.New("eventsub: keepalive timeout")

	// ErrMessageTooLarge is reported when a reassembled message exceeds the
	// configured maximum size. The message is discarded.
	ErrMessageTooLarge = errors.New("eventsub: message too large")

	// ErrSessionClosed is returned by Send after the session has closed,
	// and by Run after a local Close.
	ErrSessionClosed = errors.New("eventsub: session closed")
)
