package hue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/stream-lights-core/internal/metrics"
	"github.com/nerrad567/stream-lights-core/internal/settings"
)

// Default polling settings.
const (
	defaultPollInterval = 5 * time.Second
	defaultMaxDuration  = 5 * time.Minute
	persistTimeout      = 5 * time.Second
)

// RegistrationState is the poller's lifecycle state.
type RegistrationState int32

// Registration states.
const (
	StateIdle RegistrationState = iota
	StatePolling
	StateRegistered
	StateCancelled
	StateTimedOut
	StateFailed
)

// String returns the state name used in logs and the status API.
func (s RegistrationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateRegistered:
		return "registered"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollerOptions configures a RegistrationPoller.
type PollerOptions struct {
	// Registrar performs single attempts. Required.
	Registrar Registrar

	// BridgeAddress is the bridge to register with. When empty the store
	// is consulted.
	BridgeAddress string

	// Known is a pre-existing credential (from config). When valid, no
	// requests are made.
	Known AppRegistration

	// Store persists the credential on success and supplies a previously
	// persisted one. Optional.
	Store settings.Store

	// Interval between attempts. Default: 5s.
	Interval time.Duration

	// MaxInterval caps the interval when Backoff is set.
	MaxInterval time.Duration

	// MaxDuration bounds the whole polling phase. Default: 5m.
	MaxDuration time.Duration

	// Backoff doubles the interval after every unsuccessful attempt.
	Backoff bool

	// RetryUnreachable keeps polling through transport and bridge errors
	// instead of failing on the first one.
	RetryUnreachable bool

	Clock  clockwork.Clock
	Logger Logger
}

// RegistrationPoller obtains an application key by asking the bridge until
// its link button is pressed.
//
// At most one attempt is in flight: attempts run sequentially on the Run
// goroutine and the next one is scheduled only after the previous returns.
// The outcome is published once: Done is closed and Result becomes valid.
//
// Thread Safety: State, Done and Result are safe for concurrent use.
type RegistrationPoller struct {
	opts  PollerOptions
	clock clockwork.Clock

	state   atomic.Int32
	running atomic.Bool

	done     chan struct{}
	doneOnce sync.Once
	result   AppRegistration
	err      error
}

// NewRegistrationPoller creates a poller. Call Run to start it.
func NewRegistrationPoller(opts PollerOptions) (*RegistrationPoller, error) {
	if opts.Registrar == nil {
		return nil, fmt.Errorf("registrar is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = opts.Interval
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = defaultMaxDuration
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &RegistrationPoller{
		opts:  opts,
		clock: clock,
		done:  make(chan struct{}),
	}, nil
}

// State returns the current state.
func (p *RegistrationPoller) State() RegistrationState {
	return RegistrationState(p.state.Load())
}

// Done is closed when the poller reaches a terminal state.
func (p *RegistrationPoller) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome. It is only meaningful after Done is closed.
func (p *RegistrationPoller) Result() (AppRegistration, error) {
	select {
	case <-p.done:
		return p.result, p.err
	default:
		return AppRegistration{}, fmt.Errorf("hue: registration still in progress")
	}
}

// Run polls until registration succeeds, times out, fails, or ctx is
// cancelled. It blocks and returns the same outcome later reported by Result.
//
// Returns:
//   - AppRegistration: the credential on success
//   - error: ErrBridgeAddressMissing, ErrRegistrationFailed,
//     ErrRegistrationTimedOut, or the context error
func (p *RegistrationPoller) Run(ctx context.Context) (AppRegistration, error) {
	if !p.running.CompareAndSwap(false, true) {
		return AppRegistration{}, ErrAlreadyRunning
	}

	known, addr := p.known(ctx)
	if known.Valid() {
		p.logInfo("using existing bridge registration", "bridge", known.BridgeAddress)
		return p.finish(StateRegistered, known, nil)
	}
	if addr == "" {
		return p.finish(StateFailed, AppRegistration{}, ErrBridgeAddressMissing)
	}

	p.state.Store(int32(StatePolling))
	p.logInfo("press the link button on the Hue bridge", "bridge", addr, "timeout", p.opts.MaxDuration)

	deadline := p.clock.After(p.opts.MaxDuration)
	interval := p.opts.Interval

	for {
		reg, err := p.opts.Registrar.Register(ctx, addr)
		switch {
		case err == nil:
			metrics.RegistrationAttempts.WithLabelValues("success").Inc()
			p.persist(reg)
			p.logInfo("bridge registration complete", "bridge", reg.BridgeAddress)
			return p.finish(StateRegistered, reg, nil)
		case errors.Is(err, ErrLinkButtonNotPressed):
			metrics.RegistrationAttempts.WithLabelValues("waiting").Inc()
			p.logDebug("waiting for link button", "next_attempt", interval)
		case ctx.Err() != nil:
			return p.finish(StateCancelled, AppRegistration{}, ctx.Err())
		case errors.Is(err, ErrBridgeAddressMissing):
			return p.finish(StateFailed, AppRegistration{}, err)
		case p.opts.RetryUnreachable:
			metrics.RegistrationAttempts.WithLabelValues("error").Inc()
			p.logWarn("registration attempt failed, retrying", "error", err)
		default:
			metrics.RegistrationAttempts.WithLabelValues("error").Inc()
			return p.finish(StateFailed, AppRegistration{}, fmt.Errorf("%w: %w", ErrRegistrationFailed, err))
		}

		timer := p.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return p.finish(StateCancelled, AppRegistration{}, ctx.Err())
		case <-deadline:
			timer.Stop()
			metrics.RegistrationAttempts.WithLabelValues("timeout").Inc()
			return p.finish(StateTimedOut, AppRegistration{}, ErrRegistrationTimedOut)
		case <-timer.Chan():
		}

		if p.opts.Backoff {
			interval = min(interval*2, p.opts.MaxInterval)
		}
	}
}

// known resolves a pre-existing credential and the bridge address from the
// options, falling back to the store.
func (p *RegistrationPoller) known(ctx context.Context) (AppRegistration, string) {
	addr := p.opts.BridgeAddress
	reg := p.opts.Known
	if reg.BridgeAddress == "" {
		reg.BridgeAddress = addr
	}
	if reg.Valid() || p.opts.Store == nil {
		return reg, addr
	}

	storedAddr, err := settings.GetOr(ctx, p.opts.Store, settings.KeyBridgeIP, "")
	if err != nil {
		p.logWarn("reading stored bridge address", "error", err)
		return reg, addr
	}
	if addr == "" {
		addr = storedAddr
	}
	// A stored key only applies to the bridge it was issued by.
	if storedAddr == "" || storedAddr != addr {
		return AppRegistration{BridgeAddress: addr}, addr
	}

	appKey, err := settings.GetOr(ctx, p.opts.Store, settings.KeyAppKey, "")
	if err != nil {
		p.logWarn("reading stored application key", "error", err)
	}
	clientKey, _ := settings.GetOr(ctx, p.opts.Store, settings.KeyClientKey, "") //nolint:errcheck // optional
	return AppRegistration{AppKey: appKey, ClientKey: clientKey, BridgeAddress: addr}, addr
}

func (p *RegistrationPoller) persist(reg AppRegistration) {
	if p.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	err := settings.SetAll(ctx, p.opts.Store, map[string]string{
		settings.KeyBridgeIP:  reg.BridgeAddress,
		settings.KeyAppKey:    reg.AppKey,
		settings.KeyClientKey: reg.ClientKey,
	})
	if err != nil {
		p.logWarn("failed to persist bridge registration", "error", err)
	}
}

// finish records the terminal state and publishes the outcome.
func (p *RegistrationPoller) finish(state RegistrationState, reg AppRegistration, err error) (AppRegistration, error) {
	if cerr := p.complete(state, reg, err); cerr != nil {
		return AppRegistration{}, cerr
	}
	return reg, err
}

// complete closes Done exactly once. A second call reports
// ErrAlreadyCompleted and changes nothing.
func (p *RegistrationPoller) complete(state RegistrationState, reg AppRegistration, err error) error {
	completed := false
	p.doneOnce.Do(func() {
		p.result = reg
		p.err = err
		p.state.Store(int32(state))
		close(p.done)
		completed = true
	})
	if !completed {
		return ErrAlreadyCompleted
	}
	return nil
}

func (p *RegistrationPoller) logInfo(msg string, keysAndValues ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Info(msg, keysAndValues...)
	}
}

func (p *RegistrationPoller) logWarn(msg string, keysAndValues ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Warn(msg, keysAndValues...)
	}
}

func (p *RegistrationPoller) logDebug(msg string, keysAndValues ...any) {
	if p.opts.Logger != nil {
		p.opts.Logger.Debug(msg, keysAndValues...)
	}
}
