package hue

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/nerrad567/stream-lights-core/internal/metrics"
)

// Client defaults.
const (
	defaultRateLimit      = 10
	defaultCommandTimeout = 5 * time.Second
	defaultMaxFailures    = 5
	defaultOpenTimeout    = 30 * time.Second

	lightPath = "/clip/v2/resource/light"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// ClientOptions configures a CLIP v2 client.
type ClientOptions struct {
	// Registration supplies the bridge address and application key. Required.
	Registration AppRegistration

	// BaseURL overrides "https://<bridge address>". Tests point it at an
	// httptest server.
	BaseURL string

	// InsecureTLS skips verification of the bridge's self-signed certificate.
	InsecureTLS bool

	// HTTPClient overrides the transport. InsecureTLS is ignored when set.
	HTTPClient *http.Client

	// RateLimit is the sustained commands per second. Default: 10.
	RateLimit float64
	RateBurst int

	// CommandTimeout bounds each request. Default: 5s.
	CommandTimeout time.Duration

	// MaxFailures consecutive failures open the breaker for OpenTimeout.
	MaxFailures int
	OpenTimeout time.Duration

	Logger Logger
}

// Client controls lights through the Hue CLIP v2 API. Requests are
// throttled by a token bucket and guarded by a circuit breaker.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	appKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	timeout    time.Duration

	logger   Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client for a registered application.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Registration.AppKey == "" {
		return nil, ErrNotRegistered
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		if opts.Registration.BridgeAddress == "" {
			return nil, ErrBridgeAddressMissing
		}
		baseURL = "https://" + opts.Registration.BridgeAddress
	}

	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // bridge uses a self-signed certificate
		}
		httpClient = &http.Client{Transport: transport}
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		appKey:     opts.Registration.AppKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		timeout:    opts.CommandTimeout,
		logger:     opts.Logger,
	}

	maxFailures := uint32(opts.MaxFailures) //nolint:gosec // validated positive above
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "hue",
		Timeout: opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
			c.logWarn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	return c, nil
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type lightOn struct {
	On bool `json:"on"`
}

type lightColor struct {
	XY XY `json:"xy"`
}

type lightDimming struct {
	Brightness float64 `json:"brightness"`
}

type lightUpdate struct {
	On      *lightOn      `json:"on,omitempty"`
	Color   *lightColor   `json:"color,omitempty"`
	Dimming *lightDimming `json:"dimming,omitempty"`
}

type clipError struct {
	Description string `json:"description"`
}

type lightResource struct {
	ID       string `json:"id"`
	Metadata struct {
		Name string `json:"name"`
	} `json:"metadata"`
}

type clipResponse struct {
	Errors []clipError      `json:"errors"`
	Data   []json.RawMessage `json:"data"`
}

// GetDevices returns light name to id for every light on the bridge.
func (c *Client) GetDevices(ctx context.Context) (map[string]string, error) {
	resp, err := c.do(ctx, "get_devices", http.MethodGet, lightPath, nil)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string, len(resp.Data))
	for _, raw := range resp.Data {
		var light lightResource
		if err := json.Unmarshal(raw, &light); err != nil {
			c.logWarn("skipping undecodable light resource", "error", err)
			continue
		}
		if light.Metadata.Name == "" || light.ID == "" {
			continue
		}
		names[light.Metadata.Name] = light.ID
	}
	return names, nil
}

// TurnOn switches a light on.
func (c *Client) TurnOn(ctx context.Context, id string) error {
	return c.update(ctx, "turn_on", id, lightUpdate{On: &lightOn{On: true}})
}

// TurnOff switches a light off.
func (c *Client) TurnOff(ctx context.Context, id string) error {
	return c.update(ctx, "turn_off", id, lightUpdate{On: &lightOn{On: false}})
}

// SetColor switches a light on at the given six-digit hex color.
func (c *Client) SetColor(ctx context.Context, id, hex string) error {
	xy, err := HexToXY(hex)
	if err != nil {
		return err
	}
	return c.update(ctx, "set_color", id, lightUpdate{
		On:    &lightOn{On: true},
		Color: &lightColor{XY: xy},
	})
}

// SetBrightness switches a light on at percent brightness (0-100).
func (c *Client) SetBrightness(ctx context.Context, id string, percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: brightness %.1f out of range", ErrCommandFailed, percent)
	}
	return c.update(ctx, "set_brightness", id, lightUpdate{
		On:      &lightOn{On: true},
		Dimming: &lightDimming{Brightness: percent},
	})
}

func (c *Client) update(ctx context.Context, action, id string, body lightUpdate) error {
	if id == "" {
		return fmt.Errorf("%w: empty light id", ErrCommandFailed)
	}
	_, err := c.do(ctx, action, http.MethodPut, lightPath+"/"+id, body)
	return err
}

// do sends one request through the limiter and breaker and decodes the
// CLIP envelope. Bridge-reported errors count as failures.
func (c *Client) do(ctx context.Context, action, method, path string, body any) (*clipResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.DeviceCommands.WithLabelValues(action, "throttled").Inc()
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, method, path, body)
	})
	metrics.DeviceCommandDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
	if err != nil {
		result := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "breaker_open"
		}
		metrics.DeviceCommands.WithLabelValues(action, result).Inc()
		return nil, err
	}

	metrics.DeviceCommands.WithLabelValues(action, "success").Inc()
	return out.(*clipResponse), nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*clipResponse, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("hue-application-key", c.appKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out clipResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
	}

	if resp.StatusCode >= 300 || len(out.Errors) > 0 {
		desc := http.StatusText(resp.StatusCode)
		if len(out.Errors) > 0 {
			desc = out.Errors[0].Description
		}
		return nil, fmt.Errorf("%w: %s %s: HTTP %d: %s", ErrCommandFailed, method, path, resp.StatusCode, desc)
	}
	return &out, nil
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
