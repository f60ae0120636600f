package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/nerrad567/stream-lights-core/internal/metrics"
)

// DefaultURL is the production EventSub websocket endpoint.
const DefaultURL = "wss://eventsub.wss.twitch.tv/ws"

const (
	defaultKeepaliveGrace = 5 * time.Second
	defaultMaxMessageSize = 1 << 20
	defaultDedupSize      = 64
)

// State is the session lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateWaitingForWelcome
	StateSubscribed
	StateReconnecting
	StateClosed
)

// String returns the state name used in logs and the status API.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateWaitingForWelcome:
		return "waiting_for_welcome"
	case StateSubscribed:
		return "subscribed"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Subscriber creates the event subscriptions for a freshly welcomed session.
type Subscriber interface {
	SubscribeAll(ctx context.Context, sessionID string) error
}

// NotificationHandler receives notifications in arrival order. The session
// does not read the next message until HandleNotification returns.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, n Notification)
}

// Credentials authenticate the websocket handshake.
type Credentials struct {
	ClientID    string
	TokenSource oauth2.TokenSource
}

// Options configures a Session.
type Options struct {
	// Handler receives notifications. Required.
	Handler NotificationHandler

	// Subscriber is invoked after each welcome. Optional.
	Subscriber Subscriber

	// ResubscribeOnReconnect invokes Subscriber after welcomes that follow
	// a session_reconnect, not only the first.
	ResubscribeOnReconnect bool

	// Dialer defaults to a WebsocketDialer.
	Dialer Dialer

	// KeepaliveGrace is added to the announced keepalive timeout.
	// Default: 5s.
	KeepaliveGrace time.Duration

	// MaxMessageSize bounds a reassembled message. Default: 1 MiB.
	MaxMessageSize int

	// DedupSize is the number of notification ids remembered.
	// Default: 64.
	DedupSize int

	// Clock defaults to the real clock.
	Clock clockwork.Clock

	// OnStateChange is called after every state transition. Optional.
	OnStateChange func(State)

	Logger Logger
}

// Session is one EventSub websocket session.
//
// Run owns the receive loop; State, SessionID and Send are safe to call
// from other goroutines.
type Session struct {
	opts  Options
	creds Credentials

	mu        sync.RWMutex
	conn      Conn
	state     State
	sessionID string
	keepalive time.Duration
	welcomes  int

	// closed is set by Close so Run can tell a local close from a drop.
	closed atomic.Bool

	// Receive goroutine only.
	asm    *assembler
	recent *recentIDs
}

// Connect dials endpointURL and returns a session waiting for its welcome.
//
// Parameters:
//   - ctx: Context for the handshake
//   - endpointURL: EventSub websocket URL (DefaultURL in production)
//   - creds: Client-Id and bearer token for the handshake headers
//   - opts: Session options; Handler is required
//
// Returns:
//   - *Session: Session in StateWaitingForWelcome
//   - error: ErrConnectionFailed wrapping the handshake failure
func Connect(ctx context.Context, endpointURL string, creds Credentials, opts Options) (*Session, error) {
	if opts.Handler == nil {
		return nil, errors.New("eventsub: notification handler is required")
	}
	if endpointURL == "" {
		endpointURL = DefaultURL
	}
	if opts.Dialer == nil {
		opts.Dialer = &WebsocketDialer{}
	}
	if opts.KeepaliveGrace <= 0 {
		opts.KeepaliveGrace = defaultKeepaliveGrace
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	if opts.DedupSize <= 0 {
		opts.DedupSize = defaultDedupSize
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		opts:   opts,
		creds:  creds,
		asm:    newAssembler(opts.MaxMessageSize),
		recent: newRecentIDs(opts.DedupSize),
	}
	s.setState(StateConnecting)

	conn, err := s.dial(ctx, endpointURL)
	if err != nil {
		s.setState(StateClosed)
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateWaitingForWelcome)
	s.logInfo("eventsub connected", "url", endpointURL)
	return s, nil
}

// Run reads and dispatches messages until the connection ends.
//
// Returns nil after a close frame from the remote, ctx.Err() after
// cancellation, ErrSessionClosed after Close, ErrKeepaliveTimeout when the
// keepalive window lapses,
// ErrClosedPrematurely when the socket drops, or ErrConnectionFailed when
// a reconnect dial fails.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	for {
		conn := s.currentConn()
		if conn == nil {
			s.setState(StateClosed)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrSessionClosed
		}

		if window := s.window(); window > 0 {
			if err := conn.SetReadDeadline(s.opts.Clock.Now().Add(window)); err != nil {
				s.logWarn("failed to set read deadline", "error", err)
			}
		}

		frame, err := conn.ReadFrame()
		if err != nil {
			return s.finish(ctx, err)
		}

		if frame.Kind == FrameClose {
			s.logInfo("eventsub closed by remote", "code", frame.CloseCode, "reason", frame.CloseText)
			s.closeConn()
			s.setState(StateClosed)
			return nil
		}

		msg, complete, err := s.asm.add(frame)
		if err != nil {
			s.logWarn("discarding oversized message", "max_bytes", s.opts.MaxMessageSize)
		}
		if !complete {
			continue
		}

		if err := s.dispatch(ctx, msg); err != nil {
			s.closeConn()
			s.setState(StateClosed)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Send writes one complete text message on the current connection.
func (s *Session) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := s.currentConn()
	if conn == nil {
		return ErrSessionClosed
	}
	return conn.WriteMessage(payload)
}

// Close closes the connection. Run returns ErrSessionClosed shortly
// afterwards.
func (s *Session) Close() error {
	s.closed.Store(true)
	s.closeConn()
	s.setState(StateClosed)
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SessionID returns the id from the most recent welcome, or "".
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// KeepaliveTimeout returns the keepalive timeout from the most recent welcome.
func (s *Session) KeepaliveTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepalive
}

func (s *Session) dispatch(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logWarn("dropping malformed message", "error", err, "bytes", len(data))
		return nil
	}

	kind := ParseMessageKind(env.Metadata.MessageType)
	metrics.MessagesReceived.WithLabelValues(kind.String()).Inc()

	switch kind {
	case KindWelcome:
		s.handleWelcome(ctx, env)
	case KindKeepalive:
		s.logDebug("keepalive received")
	case KindReconnect:
		return s.handleReconnect(ctx, env)
	case KindNotification:
		s.handleNotification(ctx, env)
	case KindRevocation:
		s.handleRevocation(env)
	case KindUnknown:
		s.logWarn("unhandled message type", "message_type", env.Metadata.MessageType, "message_id", env.Metadata.MessageID)
	default:
		s.logWarn("unhandled message kind", "kind", int(kind))
	}
	return nil
}

func (s *Session) handleWelcome(ctx context.Context, env Envelope) {
	var p sessionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Session.ID == "" {
		s.logWarn("dropping welcome without session id", "error", err)
		return
	}

	s.mu.Lock()
	s.sessionID = p.Session.ID
	if p.Session.KeepaliveTimeoutSeconds > 0 {
		s.keepalive = time.Duration(p.Session.KeepaliveTimeoutSeconds) * time.Second
	}
	first := s.welcomes == 0
	s.welcomes++
	s.mu.Unlock()

	s.logInfo("eventsub session established",
		"session_id", p.Session.ID,
		"keepalive_seconds", p.Session.KeepaliveTimeoutSeconds,
	)

	if s.opts.Subscriber != nil && (first || s.opts.ResubscribeOnReconnect) {
		if err := s.opts.Subscriber.SubscribeAll(ctx, p.Session.ID); err != nil {
			s.logError("subscriptions incomplete", "session_id", p.Session.ID, "error", err)
		}
	}
	s.setState(StateSubscribed)
}

func (s *Session) handleReconnect(ctx context.Context, env Envelope) error {
	var p sessionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Session.ReconnectURL == "" {
		s.logWarn("dropping reconnect without url", "error", err)
		return nil
	}

	metrics.SessionReconnects.Inc()
	s.setState(StateReconnecting)
	s.logInfo("eventsub reconnect requested", "session_id", p.Session.ID)

	s.closeConn()

	conn, err := s.dial(ctx, p.Session.ReconnectURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if ctx.Err() != nil {
		s.closeConn()
		return ctx.Err()
	}

	s.asm.reset()
	s.setState(StateWaitingForWelcome)
	return nil
}

func (s *Session) handleNotification(ctx context.Context, env Envelope) {
	if s.recent.seenBefore(env.Metadata.MessageID) {
		s.logDebug("duplicate notification dropped", "message_id", env.Metadata.MessageID)
		return
	}

	var p notificationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.logWarn("dropping malformed notification", "message_id", env.Metadata.MessageID, "error", err)
		return
	}
	subType := p.Subscription.Type
	if subType == "" {
		subType = env.Metadata.SubscriptionType
	}

	s.opts.Handler.HandleNotification(ctx, Notification{
		MessageID:        env.Metadata.MessageID,
		SubscriptionType: subType,
		Timestamp:        env.Metadata.MessageTimestamp,
		Event:            p.Event,
	})
}

func (s *Session) handleRevocation(env Envelope) {
	var p notificationPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.logWarn("dropping malformed revocation", "error", err)
		return
	}
	s.logWarn("subscription revoked",
		"type", p.Subscription.Type,
		"status", p.Subscription.Status,
		"subscription_id", p.Subscription.ID,
	)
}

// finish classifies a read error and closes the session.
func (s *Session) finish(ctx context.Context, err error) error {
	s.closeConn()
	s.setState(StateClosed)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		s.logError("eventsub keepalive window lapsed", "window", s.window())
		return fmt.Errorf("%w: no message within %s", ErrKeepaliveTimeout, s.window())
	}
	s.logWarn("eventsub connection dropped", "error", err)
	return fmt.Errorf("%w: %w", ErrClosedPrematurely, err)
}

func (s *Session) dial(ctx context.Context, url string) (Conn, error) {
	header := http.Header{}
	if s.creds.ClientID != "" {
		header.Set("Client-Id", s.creds.ClientID)
	}
	if s.creds.TokenSource != nil {
		tok, err := s.creds.TokenSource.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: obtaining token: %w", ErrConnectionFailed, err)
		}
		header.Set("Authorization", "Bearer "+tok.AccessToken)
	}

	conn, err := s.opts.Dialer.Dial(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return conn, nil
}

// window is the read deadline span, zero until the first welcome.
func (s *Session) window() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keepalive <= 0 {
		return 0
	}
	return s.keepalive + s.opts.KeepaliveGrace
}

func (s *Session) currentConn() Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// closeConn closes and forgets the current connection. Close failures are
// logged only.
func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		s.logWarn("error closing eventsub connection", "error", err)
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()

	metrics.SessionState.Set(float64(st))
	if changed && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(st)
	}
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Error(msg, keysAndValues...)
	}
}
