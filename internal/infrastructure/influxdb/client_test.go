package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/influxdb"
)

// fakeInflux answers pings and records line protocol written to it.
type fakeInflux struct {
	server  *httptest.Server
	healthy bool

	mu    sync.Mutex
	lines []string
	query []string
}

func newFakeInflux(t *testing.T, healthy bool) *fakeInflux {
	t.Helper()
	f := &fakeInflux{healthy: healthy}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet:
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/write"):
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.query = append(f.query, r.URL.RawQuery)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// waitLines polls until at least n lines arrived.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		f.mu.Lock()
		lines := append([]string(nil), f.lines...)
		f.mu.Unlock()
		if len(lines) >= n {
			return lines
		}
		if time.Now().After(deadline) {
			t.Fatalf("received %d lines, want %d", len(lines), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "streamlights-test-token",
		Org:           "streamlights",
		Bucket:        "telemetry",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t, false)

	if _, err := influxdb.Connect(testConfig(f.server.URL)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t, true)
	cfg := testConfig(f.server.URL)
	cfg.BatchSize = 0
	cfg.FlushInterval = -1

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestWriteAudienceAction(t *testing.T) {
	f := newFakeInflux(t, true)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	at := time.Unix(1700000000, 0)
	client.WriteAudienceAction("reward", "color", "left", "executed", 42.5, at)
	client.WriteAudienceAction("chat", "color", "", "rejected", 1, at)
	client.Close()

	lines := f.waitLines(t, 2)
	tests := []struct {
		line string
		want []string
	}{
		{lines[0], []string{"audience_action,", "source=reward", "action=color", "lamp=left", "outcome=executed", "latency_ms=42.5", "1700000000000000000"}},
		{lines[1], []string{"source=chat", "lamp=none", "outcome=rejected"}},
	}
	for _, tt := range tests {
		for _, want := range tt.want {
			if !strings.Contains(tt.line, want) {
				t.Errorf("line %q missing %q", tt.line, want)
			}
		}
	}

	f.mu.Lock()
	query := f.query[0]
	f.mu.Unlock()
	if !strings.Contains(query, "bucket=telemetry") || !strings.Contains(query, "org=streamlights") {
		t.Errorf("write query = %q", query)
	}
}

func TestWriteSessionState(t *testing.T) {
	f := newFakeInflux(t, true)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteSessionState("subscribed", time.Time{})
	client.Close()

	lines := f.waitLines(t, 1)
	if !strings.HasPrefix(lines[0], "session_state,state=subscribed count=1i") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t, true)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after Close are dropped silently.
	client.WriteAudienceAction("mqtt", "power", "left", "executed", 3, time.Now())
	client.Flush()
}

func TestClose_Nil(t *testing.T) {
	var client influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client = %v", err)
	}
}
