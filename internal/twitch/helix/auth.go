package helix

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/settings"
)

// persistTimeout bounds writing a refreshed token to the store.
const persistTimeout = 5 * time.Second

// NewTokenSource returns a token source for the Twitch user token.
//
// Tokens previously persisted in store take precedence over config, since
// refresh tokens rotate. When the access token expires the refresh token
// grant is used and the new pair is written back to store.
//
// Parameters:
//   - ctx: Context used for refresh requests
//   - cfg: Twitch configuration (client id/secret, token URL, seed tokens)
//   - store: Settings store for persisted tokens (may be nil)
//   - logger: Optional logger
//
// Returns:
//   - oauth2.TokenSource: caching, refreshing, persisting source
//   - error: ErrNoCredentials if there is nothing to start from
func NewTokenSource(ctx context.Context, cfg config.TwitchConfig, store settings.Store, logger Logger) (oauth2.TokenSource, error) {
	tok := &oauth2.Token{
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		TokenType:    "Bearer",
	}

	if store != nil {
		if v, err := settings.GetOr(ctx, store, settings.KeyAccessToken, ""); err == nil && v != "" {
			tok.AccessToken = v
		}
		if v, err := settings.GetOr(ctx, store, settings.KeyRefreshToken, ""); err == nil && v != "" {
			tok.RefreshToken = v
		}
		if v, err := settings.GetOr(ctx, store, settings.KeyTokenExpiry, ""); err == nil && v != "" {
			if expiry, perr := time.Parse(time.RFC3339, v); perr == nil {
				tok.Expiry = expiry
			}
		}
	}

	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrNoCredentials
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: cfg.Scopes,
	}

	persisting := &persistingTokenSource{
		base:   oauthCfg.TokenSource(ctx, tok),
		store:  store,
		last:   tok.AccessToken,
		logger: logger,
	}
	return oauth2.ReuseTokenSource(tok, persisting), nil
}

// persistingTokenSource writes every newly issued token to the store.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	store  settings.Store
	logger Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && s.logger != nil {
			s.logger.Error("twitch token refresh rejected", "status", re.Response.StatusCode, "error_code", re.ErrorCode)
		}
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed && s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		values := map[string]string{
			settings.KeyAccessToken:  tok.AccessToken,
			settings.KeyRefreshToken: tok.RefreshToken,
		}
		if !tok.Expiry.IsZero() {
			values[settings.KeyTokenExpiry] = tok.Expiry.UTC().Format(time.RFC3339)
		}
		if err := settings.SetAll(ctx, s.store, values); err != nil && s.logger != nil {
			s.logger.Warn("failed to persist refreshed twitch token", "error", err)
		}
		if s.logger != nil {
			s.logger.Info("twitch token refreshed", "expiry", tok.Expiry)
		}
	}
	return tok, nil
}
