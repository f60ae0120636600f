package irc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/nerrad567/stream-lights-core/internal/dispatch"
)

const defaultTokenRefresh = 30 * time.Minute

// Logger interface for optional logging.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// CommandHandler executes parsed chat commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, source string, cmd dispatch.ChatCommand)
}

// ircClient is the subset of *twitchirc.Client used here.
type ircClient interface {
	OnPrivateMessage(callback func(message twitchirc.PrivateMessage))
	OnConnect(callback func())
	OnReconnectMessage(callback func(message twitchirc.ReconnectMessage))
	Join(channels ...string)
	SetIRCToken(ircToken string)
	Connect() error
	Disconnect() error
}

// Options configures a Source.
type Options struct {
	// Username is the IRC login of the bot account. Required.
	Username string

	// Channel to join, with or without the leading #. Required.
	Channel string

	// Prefix is required in front of command keywords when set.
	Prefix string

	// TokenSource supplies the user access token. Required.
	TokenSource oauth2.TokenSource

	// Handler receives every parsed command. Required.
	Handler CommandHandler

	// TokenRefresh is how often the IRC password is re-read. Default: 30m.
	TokenRefresh time.Duration

	Clock  clockwork.Clock
	Logger Logger
}

// Source feeds chat commands read over IRC to a CommandHandler.
type Source struct {
	client  ircClient
	opts    Options
	channel string

	ctxMu sync.RWMutex
	ctx   context.Context
}

// New creates a Source backed by go-twitch-irc.
func New(opts Options) (*Source, error) {
	if opts.Username == "" {
		return nil, errors.New("irc: username is required")
	}
	return newSource(twitchirc.NewClient(opts.Username, ""), opts)
}

func newSource(client ircClient, opts Options) (*Source, error) {
	channel := normalizeChannel(opts.Channel)
	if channel == "" {
		return nil, errors.New("irc: channel is required")
	}
	if opts.TokenSource == nil {
		return nil, errors.New("irc: token source is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("irc: command handler is required")
	}
	if opts.TokenRefresh <= 0 {
		opts.TokenRefresh = defaultTokenRefresh
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	s := &Source{client: client, opts: opts, channel: channel, ctx: context.Background()}

	client.OnPrivateMessage(s.handlePrivateMessage)
	client.OnConnect(func() {
		s.logInfo("irc connected", "channel", channel)
		client.Join(channel)
	})
	client.OnReconnectMessage(func(twitchirc.ReconnectMessage) {
		s.logInfo("irc server requested reconnect")
	})
	return s, nil
}

// Run connects and blocks until ctx is cancelled or the connection fails
// for good. go-twitch-irc reconnects on its own in between.
func (s *Source) Run(ctx context.Context) error {
	if err := s.refreshToken(); err != nil {
		return err
	}

	s.ctxMu.Lock()
	s.ctx = ctx
	s.ctxMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.client.Connect()
	}()

	ticker := s.opts.Clock.NewTicker(s.opts.TokenRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.client.Disconnect() //nolint:errcheck // shutting down
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			if errors.Is(err, twitchirc.ErrClientDisconnected) {
				return nil
			}
			return fmt.Errorf("irc: %w", err)
		case <-ticker.Chan():
			if err := s.refreshToken(); err != nil {
				s.logWarn("refreshing irc token failed", "error", err)
			}
		}
	}
}

func (s *Source) refreshToken() error {
	tok, err := s.opts.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("irc: fetching token: %w", err)
	}
	s.client.SetIRCToken("oauth:" + tok.AccessToken)
	return nil
}

func (s *Source) handlePrivateMessage(m twitchirc.PrivateMessage) {
	if normalizeChannel(m.Channel) != s.channel {
		return
	}
	cmd, ok := dispatch.ParseCommand(m.Message, s.opts.Prefix)
	if !ok {
		return
	}
	cmd.User = m.User.DisplayName
	if cmd.User == "" {
		cmd.User = m.User.Name
	}

	s.ctxMu.RLock()
	ctx := s.ctx
	s.ctxMu.RUnlock()

	s.opts.Handler.HandleCommand(ctx, dispatch.SourceIRC, cmd)
}

func normalizeChannel(ch string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ch), "#"))
}

func (s *Source) logInfo(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, keysAndValues...)
	}
}

func (s *Source) logWarn(msg string, keysAndValues ...any) {
	if s.opts.Logger != nil {
		s.opts.Logger.Warn(msg, keysAndValues...)
	}
}
