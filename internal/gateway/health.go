package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 60 * time.Second

// HealthReporter manages periodic health status reporting.
// Each tick it publishes a health message to MQTT and writes the engine
// counters to the time series store.
type HealthReporter struct {
	version   string
	startTime time.Time
	interval  time.Duration
	topic     string
	qos       byte
	publisher HealthPublisher
	series    StatsWriter
	engine    StatsSource

	// Counters at the previous report, for detecting new failures.
	last   tpuart.Stats
	lastMu sync.Mutex

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsWriter records engine counter snapshots.
type StatsWriter interface {
	WriteEngineStats(fields map[string]any, at time.Time)
}

// StatsSource provides the engine state reported in health messages.
type StatsSource interface {
	Stats() tpuart.Stats
	Address() knx.IndividualAddress
	ListenGroupAddresses() []knx.GroupAddress
	ListeningToBroadcasts() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the gateway software version.
	Version string

	// Interval is how often to report. Default: 60 seconds.
	Interval time.Duration

	// Topic is the MQTT health topic.
	Topic string

	// QoS for health messages.
	QoS byte

	// Publisher is optional.
	Publisher HealthPublisher

	// TimeSeries is optional.
	TimeSeries StatsWriter

	// Engine provides the counters. Required.
	Engine StatsSource
}

// NewHealthReporter creates a new health reporter.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}

	return &HealthReporter{
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		topic:     cfg.Topic,
		qos:       cfg.QoS,
		publisher: cfg.Publisher,
		series:    cfg.TimeSeries,
		engine:    cfg.Engine,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.started = true
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if h.started {
			//nolint:errcheck // best effort during shutdown
			h.publish(h.build(HealthStopping, "gateway stopping"))
		}
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.Snapshot())
}

// Snapshot builds a health message for the current state without
// publishing it.
func (h *HealthReporter) Snapshot() HealthMessage {
	status, reason := h.determineStatus()
	return h.build(status, reason)
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
			h.report()
		}
	}
}

// report publishes health and writes a statistics point.
func (h *HealthReporter) report() {
	msg := h.Snapshot()
	if err := h.publish(msg); err != nil {
		h.logError("failed to publish health", err)
	}
	if h.series != nil && msg.Statistics != nil {
		h.series.WriteEngineStats(msg.Statistics.Fields(), msg.Timestamp)
	}

	h.lastMu.Lock()
	h.last = h.engine.Stats()
	h.lastMu.Unlock()
}

// determineStatus is degraded when MQTT is down or the transceiver
// rejected or stalled on telegrams since the previous report.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	connected := h.publisher != nil && h.publisher.IsConnected()
	metrics.SetMQTTConnected(connected)

	if h.publisher != nil && !connected {
		return HealthDegraded, "MQTT disconnected"
	}

	now := h.engine.Stats()
	h.lastMu.Lock()
	prev := h.last
	h.lastMu.Unlock()

	if n := now.NegativeAcks - prev.NegativeAcks; n > 0 {
		return HealthDegraded, fmt.Sprintf("%d negative acknowledgements since last report", n)
	}
	if n := now.Timeouts - prev.Timeouts; n > 0 {
		return HealthDegraded, fmt.Sprintf("%d read timeouts since last report", n)
	}
	return HealthOnline, ""
}

func (h *HealthReporter) build(status HealthStatus, reason string) HealthMessage {
	return HealthMessage{
		Status:          status,
		Reason:          reason,
		Timestamp:       time.Now().UTC(),
		Version:         h.version,
		UptimeSeconds:   int64(time.Since(h.startTime).Seconds()),
		Address:         h.engine.Address().String(),
		ListenGroups:    len(h.engine.ListenGroupAddresses()),
		ListenBroadcast: h.engine.ListeningToBroadcasts(),
		Statistics:      NewEngineStatistics(h.engine.Stats()),
	}
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, h.qos, false)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
