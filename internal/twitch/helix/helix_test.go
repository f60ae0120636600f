package helix

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"
)

type recordedRequest struct {
	Path   string
	Header http.Header
	Body   map[string]any
}

// fakeHelix records requests and answers with a per-path status and body.
type fakeHelix struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]func(body map[string]any) (int, string)
}

func newFakeHelix(t *testing.T) (*fakeHelix, *httptest.Server) {
	t.Helper()
	f := &fakeHelix{responses: make(map[string]func(map[string]any) (int, string))}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		var body map[string]any
		_ = json.Unmarshal(data, &body) //nolint:errcheck // test server

		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
		respond := f.responses[r.URL.Path]
		f.mu.Unlock()

		status, resp := http.StatusOK, `{}`
		if respond != nil {
			status, resp = respond(body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp)) //nolint:errcheck // test server
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeHelix) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), ClientOptions{
		ClientID:    "client-123",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-abc", TokenType: "Bearer"}),
		BaseURL:     baseURL,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient_Validation(t *testing.T) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"})
	if _, err := NewClient(context.Background(), ClientOptions{TokenSource: ts}); err == nil {
		t.Error("expected error without client id")
	}
	if _, err := NewClient(context.Background(), ClientOptions{ClientID: "id"}); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("err = %v, want ErrNoCredentials", err)
	}
}

func TestSubscribe_RequestShape(t *testing.T) {
	fake, srv := newFakeHelix(t)
	fake.responses[subscriptionsPath] = func(map[string]any) (int, string) {
		return http.StatusAccepted, `{"data":[{"id":"sub-1","status":"enabled"}]}`
	}

	mgr, err := NewSubscriptionManager(newTestClient(t, srv.URL), SubscriptionManagerOptions{BroadcasterID: "1001"})
	if err != nil {
		t.Fatalf("NewSubscriptionManager: %v", err)
	}

	if err := mgr.Subscribe(context.Background(), "session-xyz", mgr.Kinds()[0]); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	calls := fake.calls()
	if len(calls) != 1 {
		t.Fatalf("requests = %d, want 1", len(calls))
	}
	req := calls[0]
	if got := req.Header.Get("Client-Id"); got != "client-123" {
		t.Errorf("Client-Id = %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer tok-abc" {
		t.Errorf("Authorization = %q", got)
	}
	if req.Body["type"] != TypeRewardRedemption || req.Body["version"] != "1" {
		t.Errorf("type/version = %v/%v", req.Body["type"], req.Body["version"])
	}
	cond, _ := req.Body["condition"].(map[string]any)
	if cond["broadcaster_user_id"] != "1001" {
		t.Errorf("condition = %v", cond)
	}
	if _, ok := cond["user_id"]; ok {
		t.Error("user_id should be omitted for reward redemptions")
	}
	tr, _ := req.Body["transport"].(map[string]any)
	if tr["method"] != "websocket" || tr["session_id"] != "session-xyz" {
		t.Errorf("transport = %v", tr)
	}
}

func TestSubscribe_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   bool
		wantCode  int
		bodyMatch string
	}{
		{name: "accepted", status: http.StatusAccepted},
		{name: "conflict treated as accepted", status: http.StatusConflict},
		{name: "forbidden", status: http.StatusForbidden, wantErr: true, wantCode: http.StatusForbidden, bodyMatch: "missing scope"},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true, wantCode: http.StatusBadRequest, bodyMatch: "missing scope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeHelix(t)
			fake.responses[subscriptionsPath] = func(map[string]any) (int, string) {
				return tt.status, `{"message":"missing scope"}`
			}
			mgr, err := NewSubscriptionManager(newTestClient(t, srv.URL), SubscriptionManagerOptions{BroadcasterID: "1001"})
			if err != nil {
				t.Fatalf("NewSubscriptionManager: %v", err)
			}

			err = mgr.Subscribe(context.Background(), "s", mgr.Kinds()[0])
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Subscribe: %v", err)
				}
				return
			}
			var subErr *SubscriptionError
			if !errors.As(err, &subErr) {
				t.Fatalf("err = %v, want *SubscriptionError", err)
			}
			if subErr.Status != tt.wantCode {
				t.Errorf("Status = %d, want %d", subErr.Status, tt.wantCode)
			}
			if !strings.Contains(subErr.Body, tt.bodyMatch) {
				t.Errorf("Body = %q", subErr.Body)
			}
		})
	}
}

func TestSubscribeAll_ChatKindAndNoRetry(t *testing.T) {
	fake, srv := newFakeHelix(t)
	fake.responses[subscriptionsPath] = func(body map[string]any) (int, string) {
		if body["type"] == TypeChatMessage {
			return http.StatusForbidden, `{"message":"denied"}`
		}
		return http.StatusAccepted, `{}`
	}

	mgr, err := NewSubscriptionManager(newTestClient(t, srv.URL), SubscriptionManagerOptions{
		BroadcasterID: "1001",
		UserID:        "2002",
		Chat:          true,
	})
	if err != nil {
		t.Fatalf("NewSubscriptionManager: %v", err)
	}

	err = mgr.SubscribeAll(context.Background(), "session-1")
	var subErr *SubscriptionError
	if !errors.As(err, &subErr) || subErr.Type != TypeChatMessage {
		t.Fatalf("err = %v, want chat SubscriptionError", err)
	}

	calls := fake.calls()
	if len(calls) != 2 {
		t.Fatalf("requests = %d, want 2 (no retries)", len(calls))
	}
	cond, _ := calls[1].Body["condition"].(map[string]any)
	if cond["broadcaster_user_id"] != "1001" || cond["user_id"] != "2002" {
		t.Errorf("chat condition = %v", cond)
	}
}

func TestSendChatMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		resp    string
		wantErr error
		apiErr  bool
	}{
		{name: "sent", status: http.StatusOK, resp: `{"data":[{"message_id":"m1","is_sent":true}]}`},
		{name: "dropped", status: http.StatusOK, resp: `{"data":[{"message_id":"","is_sent":false,"drop_reason":{"code":"msg_duplicate","message":"dup"}}]}`, wantErr: ErrMessageNotSent},
		{name: "empty data", status: http.StatusOK, resp: `{"data":[]}`, wantErr: ErrMessageNotSent},
		{name: "unauthorized", status: http.StatusUnauthorized, resp: `{"message":"invalid token"}`, apiErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newFakeHelix(t)
			fake.responses[chatMessagesPath] = func(map[string]any) (int, string) { return tt.status, tt.resp }

			sender, err := NewChatSender(newTestClient(t, srv.URL), "1001", "2002")
			if err != nil {
				t.Fatalf("NewChatSender: %v", err)
			}
			err = sender.SendChatMessage(context.Background(), "@alice hello")

			switch {
			case tt.apiErr:
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Status != tt.status {
					t.Fatalf("err = %v, want APIError %d", err, tt.status)
				}
				if apiErr.Message != "invalid token" {
					t.Errorf("Message = %q", apiErr.Message)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("SendChatMessage: %v", err)
				}
			}

			calls := fake.calls()
			if len(calls) != 1 {
				t.Fatalf("requests = %d, want 1", len(calls))
			}
			body := calls[0].Body
			if body["broadcaster_id"] != "1001" || body["sender_id"] != "2002" || body["message"] != "@alice hello" {
				t.Errorf("body = %v", body)
			}
		})
	}
}
