package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultHealthInterval = 30 * time.Second

// Publisher is the subset of the MQTT client the reporter needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Logger interface for optional logging.
type Logger interface {
	Error(msg string, keysAndValues ...any)
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Tracker   *Tracker
	Publisher Publisher

	// Topic the snapshot is published to, retained.
	Topic string

	// Interval between reports. Default: 30s.
	Interval time.Duration

	Clock clockwork.Clock
}

// HealthReporter publishes the tracker snapshot periodically.
type HealthReporter struct {
	tracker   *Tracker
	publisher Publisher
	topic     string
	interval  time.Duration
	clock     clockwork.Clock

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &HealthReporter{
		tracker:   cfg.Tracker,
		publisher: cfg.Publisher,
		topic:     cfg.Topic,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start publishes immediately and then every interval until ctx is
// cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status. Safe to
// call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		snap := h.tracker.Snapshot()
		snap.Status, snap.Reason = HealthStopping, "shutting down"
		if err := h.publish(snap); err != nil {
			h.logError("failed to publish stopping health", err)
		}
	})
}

// PublishNow publishes the current snapshot.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.tracker.Snapshot())
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.Chan():
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) publish(snap Snapshot) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding health: %w", err)
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
