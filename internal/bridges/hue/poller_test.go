package hue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/stream-lights-core/internal/settings"
)

// MockRegistrar returns scripted results, then repeats the last one.
type MockRegistrar struct {
	mu      sync.Mutex
	results []error
	calls   int
	reg     AppRegistration
}

func (m *MockRegistrar) Register(_ context.Context, bridgeAddress string) (AppRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.calls
	m.calls++
	if i >= len(m.results) {
		i = len(m.results) - 1
	}
	if err := m.results[i]; err != nil {
		return AppRegistration{}, err
	}
	reg := m.reg
	reg.BridgeAddress = bridgeAddress
	return reg, nil
}

func (m *MockRegistrar) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockStore is an in-memory settings.Store.
type MockStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMockStore() *MockStore {
	return &MockStore{values: make(map[string]string)}
}

func (s *MockStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", settings.ErrNotFound
	}
	return v, nil
}

func (s *MockStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MockStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

type runResult struct {
	reg AppRegistration
	err error
}

func startPoller(t *testing.T, ctx context.Context, p *RegistrationPoller) <-chan runResult {
	t.Helper()
	ch := make(chan runResult, 1)
	go func() {
		reg, err := p.Run(ctx)
		ch <- runResult{reg, err}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not finish")
		return runResult{}
	}
}

// blockUntil waits for the poller goroutine to park on its timers.
func blockUntil(t *testing.T, clock interface {
	BlockUntilContext(ctx context.Context, n int) error
}, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, n); err != nil {
		t.Fatalf("BlockUntilContext(%d) error = %v", n, err)
	}
}

func TestRegistrationPoller_SucceedsAfterLinkButton(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMockStore()
	registrar := &MockRegistrar{
		results: []error{ErrLinkButtonNotPressed, ErrLinkButtonNotPressed, nil},
		reg:     AppRegistration{AppKey: "key", ClientKey: "ck"},
	}

	p, err := NewRegistrationPoller(PollerOptions{
		Registrar:     registrar,
		BridgeAddress: "192.168.1.20",
		Store:         store,
		Interval:      5 * time.Second,
		MaxDuration:   time.Minute,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}

	ch := startPoller(t, context.Background(), p)

	// Deadline timer plus the interval timer.
	blockUntil(t, clock, 2)
	if p.State() != StatePolling {
		t.Errorf("State() = %v, want polling", p.State())
	}
	clock.Advance(5 * time.Second)
	blockUntil(t, clock, 2)
	clock.Advance(5 * time.Second)

	res := waitResult(t, ch)
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if res.reg.AppKey != "key" || res.reg.BridgeAddress != "192.168.1.20" {
		t.Errorf("Run() = %+v", res.reg)
	}

	// No further attempts after success.
	clock.Advance(time.Minute)
	if got := registrar.Calls(); got != 3 {
		t.Errorf("registrar calls = %d, want 3", got)
	}

	select {
	case <-p.Done():
	default:
		t.Fatal("Done() not closed after success")
	}
	reg, err := p.Result()
	if err != nil || reg.AppKey != "key" {
		t.Errorf("Result() = %+v, %v", reg, err)
	}
	if p.State() != StateRegistered {
		t.Errorf("State() = %v, want registered", p.State())
	}

	if got, _ := store.Get(context.Background(), settings.KeyAppKey); got != "key" {
		t.Errorf("stored app key = %q, want %q", got, "key")
	}
	if got, _ := store.Get(context.Background(), settings.KeyBridgeIP); got != "192.168.1.20" {
		t.Errorf("stored bridge ip = %q, want %q", got, "192.168.1.20")
	}
}

func TestRegistrationPoller_CompletesOnce(t *testing.T) {
	p, err := NewRegistrationPoller(PollerOptions{
		Registrar: &MockRegistrar{results: []error{nil}},
		Known:     AppRegistration{AppKey: "known", BridgeAddress: "10.0.0.2"},
		Clock:     clockwork.NewFakeClock(),
	})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if err := p.complete(StateFailed, AppRegistration{}, errors.New("late")); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("second complete() error = %v, want ErrAlreadyCompleted", err)
	}
	reg, err := p.Result()
	if err != nil || reg.AppKey != "known" {
		t.Errorf("Result() after second complete = %+v, %v; want unchanged", reg, err)
	}
	if _, err := p.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestRegistrationPoller_PreKnownSkipsPolling(t *testing.T) {
	tests := []struct {
		name  string
		opts  PollerOptions
		store map[string]string
	}{
		{
			name: "from options",
			opts: PollerOptions{
				BridgeAddress: "10.0.0.2",
				Known:         AppRegistration{AppKey: "cfg-key"},
			},
		},
		{
			name:  "from store",
			opts:  PollerOptions{},
			store: map[string]string{settings.KeyBridgeIP: "10.0.0.2", settings.KeyAppKey: "stored-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registrar := &MockRegistrar{results: []error{nil}}
			store := NewMockStore()
			for k, v := range tt.store {
				_ = store.Set(context.Background(), k, v) //nolint:errcheck // in-memory
			}
			opts := tt.opts
			opts.Registrar = registrar
			opts.Store = store
			opts.Clock = clockwork.NewFakeClock()

			p, err := NewRegistrationPoller(opts)
			if err != nil {
				t.Fatalf("NewRegistrationPoller() error = %v", err)
			}
			reg, err := p.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !reg.Valid() || reg.BridgeAddress != "10.0.0.2" {
				t.Errorf("Run() = %+v, want valid registration for 10.0.0.2", reg)
			}
			if registrar.Calls() != 0 {
				t.Errorf("registrar calls = %d, want 0", registrar.Calls())
			}
		})
	}
}

func TestRegistrationPoller_StoredKeyForOtherBridgeIgnored(t *testing.T) {
	registrar := &MockRegistrar{results: []error{nil}, reg: AppRegistration{AppKey: "fresh"}}
	store := NewMockStore()
	_ = store.Set(context.Background(), settings.KeyBridgeIP, "10.0.0.9") //nolint:errcheck // in-memory
	_ = store.Set(context.Background(), settings.KeyAppKey, "stale")      //nolint:errcheck // in-memory

	p, err := NewRegistrationPoller(PollerOptions{
		Registrar:     registrar,
		BridgeAddress: "10.0.0.2",
		Store:         store,
		Clock:         clockwork.NewFakeClock(),
	})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}
	reg, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if reg.AppKey != "fresh" {
		t.Errorf("AppKey = %q, want fresh", reg.AppKey)
	}
	if registrar.Calls() != 1 {
		t.Errorf("registrar calls = %d, want 1", registrar.Calls())
	}
}

func TestRegistrationPoller_MissingAddress(t *testing.T) {
	registrar := &MockRegistrar{results: []error{nil}}
	p, err := NewRegistrationPoller(PollerOptions{Registrar: registrar, Clock: clockwork.NewFakeClock()})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}

	_, err = p.Run(context.Background())
	if !errors.Is(err, ErrBridgeAddressMissing) {
		t.Errorf("Run() error = %v, want ErrBridgeAddressMissing", err)
	}
	if registrar.Calls() != 0 {
		t.Errorf("registrar calls = %d, want 0", registrar.Calls())
	}
	if p.State() != StateFailed {
		t.Errorf("State() = %v, want failed", p.State())
	}
}

func TestRegistrationPoller_TimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registrar := &MockRegistrar{results: []error{ErrLinkButtonNotPressed}}

	p, err := NewRegistrationPoller(PollerOptions{
		Registrar:     registrar,
		BridgeAddress: "10.0.0.2",
		Interval:      5 * time.Second,
		MaxDuration:   10 * time.Second,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}

	ch := startPoller(t, context.Background(), p)
	blockUntil(t, clock, 2)
	clock.Advance(15 * time.Second)

	res := waitResult(t, ch)
	if !errors.Is(res.err, ErrRegistrationTimedOut) {
		t.Fatalf("Run() error = %v, want ErrRegistrationTimedOut", res.err)
	}
	if p.State() != StateTimedOut {
		t.Errorf("State() = %v, want timed_out", p.State())
	}
}

func TestRegistrationPoller_Cancelled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	p, err := NewRegistrationPoller(PollerOptions{
		Registrar:     &MockRegistrar{results: []error{ErrLinkButtonNotPressed}},
		BridgeAddress: "10.0.0.2",
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}

	ch := startPoller(t, ctx, p)
	blockUntil(t, clock, 2)
	cancel()

	res := waitResult(t, ch)
	if !errors.Is(res.err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", res.err)
	}
	if p.State() != StateCancelled {
		t.Errorf("State() = %v, want cancelled", p.State())
	}
}

func TestRegistrationPoller_UnreachableBridge(t *testing.T) {
	errDown := errors.New("connection refused")

	t.Run("fails by default", func(t *testing.T) {
		p, err := NewRegistrationPoller(PollerOptions{
			Registrar:     &MockRegistrar{results: []error{errDown}},
			BridgeAddress: "10.0.0.2",
			Clock:         clockwork.NewFakeClock(),
		})
		if err != nil {
			t.Fatalf("NewRegistrationPoller() error = %v", err)
		}
		_, err = p.Run(context.Background())
		if !errors.Is(err, ErrRegistrationFailed) || !errors.Is(err, errDown) {
			t.Errorf("Run() error = %v, want ErrRegistrationFailed wrapping cause", err)
		}
	})

	t.Run("retried when enabled", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		registrar := &MockRegistrar{results: []error{errDown, nil}, reg: AppRegistration{AppKey: "k"}}
		p, err := NewRegistrationPoller(PollerOptions{
			Registrar:        registrar,
			BridgeAddress:    "10.0.0.2",
			RetryUnreachable: true,
			Interval:         time.Second,
			Clock:            clock,
		})
		if err != nil {
			t.Fatalf("NewRegistrationPoller() error = %v", err)
		}

		ch := startPoller(t, context.Background(), p)
		blockUntil(t, clock, 2)
		clock.Advance(time.Second)

		res := waitResult(t, ch)
		if res.err != nil {
			t.Fatalf("Run() error = %v", res.err)
		}
		if registrar.Calls() != 2 {
			t.Errorf("registrar calls = %d, want 2", registrar.Calls())
		}
	})
}

func TestRegistrationPoller_Backoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	registrar := &MockRegistrar{
		results: []error{ErrLinkButtonNotPressed, ErrLinkButtonNotPressed, nil},
		reg:     AppRegistration{AppKey: "k"},
	}

	p, err := NewRegistrationPoller(PollerOptions{
		Registrar:     registrar,
		BridgeAddress: "10.0.0.2",
		Interval:      time.Second,
		MaxInterval:   10 * time.Second,
		MaxDuration:   time.Hour,
		Backoff:       true,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("NewRegistrationPoller() error = %v", err)
	}

	ch := startPoller(t, context.Background(), p)

	blockUntil(t, clock, 2)
	clock.Advance(time.Second)
	blockUntil(t, clock, 2)

	// Second wait is doubled: one second is not enough.
	clock.Advance(time.Second)
	if registrar.Calls() != 2 {
		t.Fatalf("registrar calls = %d after 1s of a 2s wait, want 2", registrar.Calls())
	}
	clock.Advance(time.Second)

	if res := waitResult(t, ch); res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if registrar.Calls() != 3 {
		t.Errorf("registrar calls = %d, want 3", registrar.Calls())
	}
}

func TestRegistrationState_String(t *testing.T) {
	tests := map[RegistrationState]string{
		StateIdle:              "idle",
		StatePolling:           "polling",
		StateRegistered:        "registered",
		StateCancelled:         "cancelled",
		StateTimedOut:          "timed_out",
		StateFailed:            "failed",
		RegistrationState(99): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
