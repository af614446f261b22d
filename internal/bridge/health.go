package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes the bridge's health on a fixed interval.
//
// The bridge is degraded while MQTT is disconnected, before the device is
// set up, and while the latest status refresh has failed.
type HealthReporter struct {
	bridgeID  string
	version   string
	topic     string
	interval  time.Duration
	publisher Publisher
	device    Device
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// Publisher is the part of the MQTT client the health reporter needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Topic is the retained health topic.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	Publisher Publisher
	Device    Device
	Logger    Logger
}

// NewHealthReporter creates a health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		topic:     cfg.Topic,
		interval:  interval,
		publisher: cfg.Publisher,
		device:    cfg.Device,
		startTime: time.Now(),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

// Start begins periodic health reporting until ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.device == nil || !h.device.Ready() {
		return HealthDegraded, "device not set up"
	}
	if !h.device.Healthy() {
		reason := "last status refresh failed"
		if lastErr := h.device.Stats().LastError; lastErr != "" {
			reason = fmt.Sprintf("%s: %s", reason, lastErr)
		}
		return HealthDegraded, reason
	}
	return HealthHealthy, ""
}

// message builds the health message for status.
func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	if h.device != nil {
		stats := h.device.Stats()
		dh := &DeviceHealth{
			Serial:    h.device.Serial(),
			Ready:     h.device.Ready(),
			Polls:     stats.Polls,
			Failures:  stats.Failures,
			LastError: stats.LastError,
		}
		if !stats.LastSuccess.IsZero() {
			last := stats.LastSuccess.UTC()
			dh.LastSuccess = &last
		}
		msg.Device = dh
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}
