package helix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the production Helix API root.
	DefaultBaseURL = "https://api.twitch.tv/helix"

	defaultRequestTimeout = 10 * time.Second
	maxResponseBytes      = 1 << 20
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ClientOptions configures a Helix client.
type ClientOptions struct {
	// ClientID is sent as the Client-Id header. Required.
	ClientID string

	// TokenSource supplies the user access token. Required.
	TokenSource oauth2.TokenSource

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration

	Logger Logger
}

// Client is a minimal Helix API client covering EventSub subscriptions and
// chat messages.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient creates a Helix client. The HTTP client attaches the bearer
// token from opts.TokenSource to every request.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("helix: client id is required")
	}
	if opts.TokenSource == nil {
		return nil, ErrNoCredentials
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}

	httpClient := oauth2.NewClient(ctx, opts.TokenSource)
	httpClient.Timeout = opts.Timeout

	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		clientID:   opts.ClientID,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// postJSON sends body to path and returns the status code and response body.
// Transport failures are returned as errors; HTTP error statuses are not.
func (c *Client) postJSON(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("helix: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("helix: building request: %w", err)
	}
	req.Header.Set("Client-Id", c.clientID)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("helix: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("helix: reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// apiError builds an APIError from a Helix error body.
func apiError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload) //nolint:errcheck // body may not be JSON
	return &APIError{Status: status, Message: payload.Message, Body: string(body)}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
