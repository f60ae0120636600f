package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps bridge response bodies.
const maxResponseBytes = 1 << 20

// AppRegistration is the credential the bridge issues once its link button
// has been pressed. It is immutable once published.
type AppRegistration struct {
	// AppKey is sent as the hue-application-key header (the v1 "username").
	AppKey string

	// ClientKey is the entertainment streaming key.
	ClientKey string

	// BridgeAddress is the host (or host:port) the credential belongs to.
	BridgeAddress string
}

// Valid reports whether both an address and an application key are present.
func (r AppRegistration) Valid() bool {
	return r.BridgeAddress != "" && r.AppKey != ""
}

// Registrar performs a single registration attempt against a bridge.
type Registrar interface {
	Register(ctx context.Context, bridgeAddress string) (AppRegistration, error)
}

// LinkButtonRegistrar registers an application through POST /api.
type LinkButtonRegistrar struct {
	httpClient *http.Client
	deviceType string
}

// NewLinkButtonRegistrar creates a registrar announcing itself as
// "<appName>#<deviceName>". A nil httpClient uses a client with a 10s timeout.
func NewLinkButtonRegistrar(httpClient *http.Client, appName, deviceName string) *LinkButtonRegistrar {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &LinkButtonRegistrar{
		httpClient: httpClient,
		deviceType: appName + "#" + deviceName,
	}
}

type registerRequest struct {
	DeviceType        string `json:"devicetype"`
	GenerateClientKey bool   `json:"generateclientkey"`
}

type registerResult struct {
	Success *struct {
		Username  string `json:"username"`
		ClientKey string `json:"clientkey"`
	} `json:"success"`
	Error *BridgeError `json:"error"`
}

// Register asks the bridge for an application key.
//
// Returns:
//   - AppRegistration: on success
//   - error: ErrBridgeAddressMissing, ErrLinkButtonNotPressed while waiting,
//     a *BridgeError for other bridge errors, or a transport error
func (r *LinkButtonRegistrar) Register(ctx context.Context, bridgeAddress string) (AppRegistration, error) {
	if bridgeAddress == "" {
		return AppRegistration{}, ErrBridgeAddressMissing
	}

	body, err := json.Marshal(registerRequest{DeviceType: r.deviceType, GenerateClientKey: true})
	if err != nil {
		return AppRegistration{}, fmt.Errorf("encoding registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationURL(bridgeAddress), bytes.NewReader(body))
	if err != nil {
		return AppRegistration{}, fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return AppRegistration{}, fmt.Errorf("contacting bridge: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return AppRegistration{}, fmt.Errorf("reading registration response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return AppRegistration{}, fmt.Errorf("registration returned HTTP %d", resp.StatusCode)
	}

	var results []registerResult
	if err := json.Unmarshal(data, &results); err != nil {
		return AppRegistration{}, fmt.Errorf("decoding registration response: %w", err)
	}
	if len(results) == 0 {
		return AppRegistration{}, fmt.Errorf("empty registration response")
	}

	first := results[0]
	switch {
	case first.Success != nil && first.Success.Username != "":
		return AppRegistration{
			AppKey:        first.Success.Username,
			ClientKey:     first.Success.ClientKey,
			BridgeAddress: bridgeAddress,
		}, nil
	case first.Error != nil && first.Error.Type == linkButtonNotPressed:
		return AppRegistration{}, ErrLinkButtonNotPressed
	case first.Error != nil:
		return AppRegistration{}, first.Error
	default:
		return AppRegistration{}, fmt.Errorf("registration response has neither success nor error")
	}
}

// registrationURL accepts a bare host ("192.168.1.20") or a full base URL.
func registrationURL(bridgeAddress string) string {
	base := bridgeAddress
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return strings.TrimSuffix(base, "/") + "/api"
}
