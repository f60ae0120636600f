package eventsub

import (
	"context"
	"net/http"
	"time"
)

// FrameKind distinguishes data frames from the closing handshake.
type FrameKind int

const (
	// FrameText carries part of a UTF-8 text message.
	FrameText FrameKind = iota
	// FrameBinary carries part of a binary message.
	FrameBinary
	// FrameClose means the remote sent a close frame.
	FrameClose
)

// Frame is one chunk of an inbound message. Final marks the end of the
// message; a message may span any number of frames.
type Frame struct {
	Kind  FrameKind
	Data  []byte
	Final bool

	// CloseCode and CloseText are set for FrameClose.
	CloseCode int
	CloseText string
}

// Conn is a message-oriented duplex connection.
type Conn interface {
	// ReadFrame blocks until the next frame arrives. A read deadline
	// expiry returns an error matching os.ErrDeadlineExceeded.
	ReadFrame() (Frame, error)

	// WriteMessage sends one complete text message.
	WriteMessage(data []byte) error

	// SetReadDeadline bounds the next reads. The zero time disables it.
	SetReadDeadline(t time.Time) error

	// Close performs the closing handshake (best effort) and releases the
	// connection.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}
