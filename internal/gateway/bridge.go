package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-tpuart/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
	"github.com/nerrad567/gray-logic-tpuart/internal/tpuart"
)

// Send outcomes, used as metric labels.
const (
	outcomeOK          = "ok"
	outcomeNegativeAck = "negative_ack"
	outcomeTimeout     = "timeout"
	outcomeInvalid     = "invalid"
	outcomeError       = "error"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine is the line engine as seen by the bridge. *tpuart.Engine
// implements it.
type Engine interface {
	Run(ctx context.Context, handler tpuart.Handler) error
	NewGroupFrame(ga knx.GroupAddress, firstData uint8, cmd knx.Command, payloadLength int) (*knx.Telegram, error)
	Send(t *knx.Telegram) error
	Stats() tpuart.Stats
	Address() knx.IndividualAddress
	AddListenGroupAddress(ga knx.GroupAddress) error
	ListenGroupAddresses() []knx.GroupAddress
	SetListenToBroadcasts(listen bool)
	ListeningToBroadcasts() bool
}

// Publisher is the MQTT client as seen by the bridge. *mqtt.Client
// implements it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// TimeSeries receives telegram, datapoint and statistics points.
// *influxdb.Client implements it.
type TimeSeries interface {
	WriteTelegram(t *knx.Telegram, checksumOK bool, at time.Time)
	WriteDatapoint(ga knx.GroupAddress, dpt knx.DPT, name string, value any, at time.Time)
	WriteEngineStats(fields map[string]any, at time.Time)
}

// AddressRecorder stores seen addresses and sent telegrams. *Recorder
// implements it.
type AddressRecorder interface {
	RecordTelegram(t *knx.Telegram, at time.Time)
	RecordSent(rec SentRecord)
}

// Broadcaster delivers telegrams and state changes to live monitor clients.
type Broadcaster interface {
	BroadcastTelegram(msg TelegramMessage)
	BroadcastState(msg StateMessage)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Engine is the line engine. Required.
	Engine Engine

	// MQTT is optional. Without it no topics are published or subscribed.
	MQTT Publisher

	// Topics is the MQTT topic tree. Zero value uses the default prefix.
	Topics mqtt.Topics

	// QoS for published messages.
	QoS byte

	// TimeSeries is optional.
	TimeSeries TimeSeries

	// Recorder is optional.
	Recorder AddressRecorder

	// Datapoints maps group addresses to value types for decoding.
	Datapoints Datapoints

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health and statistics are published.
	// Default: 60 seconds.
	HealthInterval time.Duration

	// Logger is optional.
	Logger Logger
}

// Bridge connects the line engine to MQTT, InfluxDB, the address recorder
// and live monitors.
//
// Thread Safety: All exported methods are safe for concurrent use.
type Bridge struct {
	engine     Engine
	mqtt       Publisher
	topics     mqtt.Topics
	qos        byte
	series     TimeSeries
	recorder   AddressRecorder
	datapoints Datapoints

	broadcaster   Broadcaster
	broadcasterMu sync.RWMutex

	health *HealthReporter

	// Last published value per datapoint.
	stateCache   map[knx.GroupAddress]StateMessage
	stateCacheMu sync.RWMutex

	telegramsPublished atomic.Uint64
	statesPublished    atomic.Uint64
	commandsReceived   atomic.Uint64
	commandsFailed     atomic.Uint64

	running   atomic.Bool
	runErr    error
	runErrMu  sync.Mutex
	ctxCancel context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Engine == nil {
		return nil, ErrMissingEngine
	}

	dps := opts.Datapoints
	if dps == nil {
		dps = Datapoints{}
	}

	b := &Bridge{
		engine:     opts.Engine,
		mqtt:       opts.MQTT,
		topics:     opts.Topics,
		qos:        opts.QoS,
		series:     opts.TimeSeries,
		recorder:   opts.Recorder,
		datapoints: dps,
		stateCache: make(map[knx.GroupAddress]StateMessage),
		done:       make(chan struct{}),
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:    opts.Version,
		Interval:   opts.HealthInterval,
		Topic:      b.topics.Health(),
		QoS:        opts.QoS,
		Publisher:  opts.MQTT,
		TimeSeries: opts.TimeSeries,
		Engine:     opts.Engine,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start subscribes to the command topics, starts the engine's receive loop
// and begins health reporting. The loop runs until ctx is cancelled, Stop
// is called, or the port closes; Done reports when it has exited.
func (b *Bridge) Start(ctx context.Context) error {
	if b.mqtt != nil {
		topic := b.topics.AllCommands()
		if err := b.mqtt.Subscribe(topic, b.qos, b.handleMQTTMessage); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.logInfo("subscribed to commands", "topic", topic)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.ctxCancel = cancel
	b.running.Store(true)

	metrics.SetListenTableSize(len(b.engine.ListenGroupAddresses()))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer close(b.done)
		defer b.running.Store(false)

		err := b.engine.Run(runCtx, b.handleEvent)
		if err != nil {
			b.runErrMu.Lock()
			b.runErr = err
			b.runErrMu.Unlock()
			b.logError("receive loop stopped", err)
		}
	}()

	b.health.Start(runCtx)
	if err := b.health.PublishNow(); err != nil {
		b.logDebug("initial health publish skipped", "reason", err.Error())
	}

	b.logInfo("bridge started",
		"address", b.engine.Address().String(),
		"datapoints", len(b.datapoints),
		"listen_groups", len(b.engine.ListenGroupAddresses()))

	return nil
}

// Stop gracefully shuts down the bridge. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.running.Store(false)

		if b.mqtt != nil {
			if err := b.mqtt.Unsubscribe(b.topics.AllCommands()); err != nil {
				b.logDebug("unsubscribe from commands failed", "reason", err.Error())
			}
		}

		b.health.Stop()

		if b.ctxCancel != nil {
			b.ctxCancel()
		}
		b.wg.Wait()

		b.logInfo("bridge stopped")
	})
}

// Done is closed when the receive loop exits.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Err returns the error that ended the receive loop, if any.
func (b *Bridge) Err() error {
	b.runErrMu.Lock()
	defer b.runErrMu.Unlock()
	return b.runErr
}

// SetBroadcaster attaches the live monitor. nil detaches it.
func (b *Bridge) SetBroadcaster(bc Broadcaster) {
	b.broadcasterMu.Lock()
	b.broadcaster = bc
	b.broadcasterMu.Unlock()
}

func (b *Bridge) getBroadcaster() Broadcaster {
	b.broadcasterMu.RLock()
	defer b.broadcasterMu.RUnlock()
	return b.broadcaster
}

func (b *Bridge) broadcast(msg TelegramMessage) {
	if bc := b.getBroadcaster(); bc != nil {
		bc.BroadcastTelegram(msg)
	}
}

// ─── Receive path ───────────────────────────────────────────────

// handleEvent is the engine's Run handler.
func (b *Bridge) handleEvent(ev tpuart.Event) {
	command := ""
	if ev.Telegram != nil {
		command = ev.Telegram.Command().String()
	}
	metrics.RecordEvent(ev.Type.String(), command)

	switch ev.Type {
	case tpuart.EventTelegram:
		b.handleTelegram(ev)
	case tpuart.EventResetIndication:
		b.logInfo("transceiver reset indication")
	case tpuart.EventUnknown:
		b.logDebug("unknown byte from transceiver", "byte", fmt.Sprintf("0x%02x", ev.Byte))
	case tpuart.EventIrrelevantTelegram:
		// Counted above. Not ours.
	}
}

// handleTelegram fans an accepted telegram out to every sink.
func (b *Bridge) handleTelegram(ev tpuart.Event) {
	t := ev.Telegram
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	if b.recorder != nil {
		b.recorder.RecordTelegram(t, at)
	}
	if b.series != nil {
		b.series.WriteTelegram(t, ev.ChecksumOK, at)
	}

	msg := NewTelegramMessage(t, ev.ChecksumOK, at, DirectionRx)

	if t.IsTargetGroup() {
		ga := t.TargetGroupAddress()
		if dp, ok := b.datapoints.Lookup(ga); ok && carriesValue(t.Command()) {
			value, err := knx.DecodeValue(t, dp.DPT)
			if err != nil {
				b.logWarn("failed to decode telegram",
					"group_address", ga.String(),
					"dpt", string(dp.DPT),
					"error", err)
			} else {
				msg.Value = value
				msg.DPT = dp.DPT
				b.updateState(dp, value, t.SourceAddress().String(), at)
			}
		}
		b.publishJSON(b.topics.Telegram(ga), msg, false)
	} else {
		b.publishJSON(b.topics.Individual(t.TargetIndividualAddress()), msg, false)
	}
	b.telegramsPublished.Add(1)

	b.broadcast(msg)

	b.logDebug("telegram received", "telegram", t, "checksum_ok", ev.ChecksumOK)
}

// carriesValue reports whether telegrams with cmd hold a datapoint value.
func carriesValue(cmd knx.Command) bool {
	return cmd == knx.CommandWrite || cmd == knx.CommandAnswer
}

// updateState records value for dp and publishes it retained when it
// differs from the last published value.
func (b *Bridge) updateState(dp Datapoint, value any, source string, at time.Time) {
	state := StateMessage{
		Address:   dp.Address.String(),
		Name:      dp.Name,
		DPT:       dp.DPT,
		Value:     value,
		Source:    source,
		Timestamp: at.UTC(),
	}

	if b.series != nil {
		b.series.WriteDatapoint(dp.Address, dp.DPT, dp.Name, value, at)
	}

	if b.stateUnchanged(dp.Address, state) {
		return
	}

	if b.publishJSON(b.topics.State(dp.Address), state, true) {
		b.statesPublished.Add(1)
	}
	if bc := b.getBroadcaster(); bc != nil {
		bc.BroadcastState(state)
	}
}

// stateUnchanged caches state and reports whether its value matches the
// previously cached one.
func (b *Bridge) stateUnchanged(ga knx.GroupAddress, state StateMessage) bool {
	b.stateCacheMu.Lock()
	defer b.stateCacheMu.Unlock()

	prev, ok := b.stateCache[ga]
	b.stateCache[ga] = state
	return ok && valuesEqual(prev.Value, state.Value)
}

// valuesEqual compares decoded values. Every DecodeValue result type is
// comparable with ==.
func valuesEqual(a, b any) bool {
	return a == b
}

// State returns the last value seen for a configured datapoint.
func (b *Bridge) State(ga knx.GroupAddress) (StateMessage, bool) {
	b.stateCacheMu.RLock()
	defer b.stateCacheMu.RUnlock()
	s, ok := b.stateCache[ga]
	return s, ok
}

// States returns every cached datapoint value, in group address order.
func (b *Bridge) States() []StateMessage {
	b.stateCacheMu.RLock()
	defer b.stateCacheMu.RUnlock()

	out := make([]StateMessage, 0, len(b.stateCache))
	for _, dp := range b.datapoints.Sorted() {
		if s, ok := b.stateCache[dp.Address]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ClearStateCache forgets every cached value, so the next telegram for each
// datapoint is republished.
func (b *Bridge) ClearStateCache() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[knx.GroupAddress]StateMessage)
	b.stateCacheMu.Unlock()
}

// ─── Send path ──────────────────────────────────────────────────

// Send puts one group telegram on the line and waits for the transceiver's
// confirmation.
//
// Returns:
//   - Result: The request ID and the frame that was sent
//   - error: ErrInvalidAction, ErrMissingDPT, a knx encoding error,
//     tpuart.ErrNegativeAck, tpuart.ErrReadTimeout, or ctx.Err()
func (b *Bridge) Send(ctx context.Context, req Request) (Result, error) {
	if req.ID == "" {
		req.ID = newRequestID()
	}
	if req.Origin == "" {
		req.Origin = "api"
	}
	if req.Action == "" {
		req.Action = ActionWrite
	}

	t, dpt, err := b.buildFrame(req)
	if err != nil {
		metrics.RecordSend(req.Origin, outcomeInvalid, 0)
		return Result{ID: req.ID}, err
	}

	if !b.running.Load() {
		return Result{ID: req.ID}, ErrNotRunning
	}
	if err := ctx.Err(); err != nil {
		return Result{ID: req.ID}, err
	}

	start := time.Now()
	sendErr := b.engine.Send(t)
	elapsed := time.Since(start)
	sentAt := start.Add(elapsed)

	outcome := sendOutcome(sendErr)
	metrics.RecordSend(req.Origin, outcome, elapsed)

	status := AckAccepted
	errText := ""
	if sendErr != nil {
		status = AckFailed
		errText = sendErr.Error()
	}
	if b.recorder != nil {
		b.recorder.RecordSent(SentRecord{
			RequestID: req.ID,
			Target:    req.GroupAddress.String(),
			Command:   t.Command().String(),
			Raw:       t.Bytes(),
			Status:    status,
			Error:     errText,
			SentAt:    sentAt,
		})
	}

	result := Result{
		ID:           req.ID,
		GroupAddress: req.GroupAddress,
		Address:      req.GroupAddress.String(),
		Action:       req.Action,
		DPT:          dpt,
		Raw:          hex.EncodeToString(t.Bytes()),
		SentAt:       sentAt.UTC(),
	}

	if sendErr != nil {
		b.logWarn("send failed",
			"request_id", req.ID,
			"group_address", req.GroupAddress.String(),
			"origin", req.Origin,
			"outcome", outcome,
			"error", sendErr)
		return result, fmt.Errorf("sending to %s: %w", req.GroupAddress, sendErr)
	}

	if b.series != nil {
		b.series.WriteTelegram(t, true, sentAt)
	}
	msg := NewTelegramMessage(t, true, sentAt, DirectionTx)
	if dpt != "" {
		msg.DPT = dpt
		msg.Value = req.Value
	}
	b.broadcast(msg)

	b.logDebug("telegram sent",
		"request_id", req.ID,
		"origin", req.Origin,
		"telegram", t,
		"duration", elapsed)

	return result, nil
}

// buildFrame validates req and encodes its telegram.
func (b *Bridge) buildFrame(req Request) (*knx.Telegram, knx.DPT, error) {
	if _, err := ParseAction(string(req.Action)); err != nil {
		return nil, "", err
	}

	cmd := req.Action.Command()
	t, err := b.engine.NewGroupFrame(req.GroupAddress, 0, cmd, knx.LengthSmall)
	if err != nil {
		return nil, "", err
	}
	if req.Action == ActionRead {
		return t, "", nil
	}

	dpt := req.DPT
	if dpt == "" {
		dp, ok := b.datapoints.Lookup(req.GroupAddress)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s", ErrMissingDPT, req.GroupAddress)
		}
		dpt = dp.DPT
	}
	if err := knx.EncodeValue(t, dpt, req.Value); err != nil {
		return nil, "", err
	}
	t.CreateChecksum()
	return t, dpt, nil
}

func sendOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, tpuart.ErrNegativeAck):
		return outcomeNegativeAck
	case errors.Is(err, tpuart.ErrReadTimeout):
		return outcomeTimeout
	default:
		return outcomeError
	}
}

// ─── MQTT commands ──────────────────────────────────────────────

// handleMQTTMessage handles a message on a command topic.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) error {
	b.commandsReceived.Add(1)

	ga, err := b.topics.ParseGroupTopic(topic, "command")
	if err != nil {
		b.commandsFailed.Add(1)
		b.logWarn("ignoring command on malformed topic", "topic", topic, "error", err)
		return nil
	}

	cmd, err := ParseCommandMessage(payload)
	if err != nil {
		b.commandsFailed.Add(1)
		b.publishAck(AckMessage{
			Address: ga.String(),
			Status:  AckFailed,
			Error:   &AckError{Code: ErrCodeInvalidCommand, Message: err.Error()},
		}, ga)
		return nil
	}

	action, err := ParseAction(cmd.Action)
	if err != nil {
		b.commandsFailed.Add(1)
		b.publishAck(AckMessage{
			CommandID: cmd.ID,
			Address:   ga.String(),
			Status:    AckFailed,
			Error:     &AckError{Code: ErrCodeInvalidCommand, Message: err.Error()},
		}, ga)
		return nil
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"group_address", ga.String(),
		"action", string(action))

	res, err := b.Send(context.Background(), Request{
		ID:           cmd.ID,
		GroupAddress: ga,
		Action:       action,
		DPT:          cmd.DPT,
		Value:        cmd.Value,
		Origin:       "mqtt",
	})

	ack := AckMessage{
		CommandID: res.ID,
		Address:   ga.String(),
		Action:    action,
		Raw:       res.Raw,
		Status:    AckAccepted,
	}
	if err != nil {
		b.commandsFailed.Add(1)
		ack.Status = AckFailed
		ack.Error = &AckError{Code: errorCode(err), Message: err.Error()}
	}
	b.publishAck(ack, ga)
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, tpuart.ErrNegativeAck):
		return ErrCodeNegativeAck
	case errors.Is(err, tpuart.ErrReadTimeout):
		return ErrCodeTimeout
	case errors.Is(err, ErrMissingDPT),
		errors.Is(err, knx.ErrUnknownDPT),
		errors.Is(err, knx.ErrValueOutOfRange):
		return ErrCodeInvalidParameters
	case errors.Is(err, ErrInvalidAction):
		return ErrCodeInvalidCommand
	default:
		return ErrCodeLineError
	}
}

func (b *Bridge) publishAck(ack AckMessage, ga knx.GroupAddress) {
	ack.Timestamp = time.Now().UTC()
	b.publishJSON(b.topics.Ack(ga), ack, false)
}

// publishJSON marshals v and publishes it. Reports whether it was sent.
func (b *Bridge) publishJSON(topic string, v any, retained bool) bool {
	if b.mqtt == nil || !b.mqtt.IsConnected() {
		return false
	}
	payload, err := json.Marshal(v)
	if err != nil {
		b.logError("failed to marshal message", err)
		return false
	}
	if err := b.mqtt.Publish(topic, payload, b.qos, retained); err != nil {
		b.logError("failed to publish", fmt.Errorf("topic %s: %w", topic, err))
		return false
	}
	return true
}

// ─── Listen table and status ────────────────────────────────────

// Address returns the gateway's individual address.
func (b *Bridge) Address() knx.IndividualAddress {
	return b.engine.Address()
}

// ListenGroupAddresses returns the engine's listen table.
func (b *Bridge) ListenGroupAddresses() []knx.GroupAddress {
	return b.engine.ListenGroupAddresses()
}

// AddListenGroupAddress adds ga to the engine's listen table.
func (b *Bridge) AddListenGroupAddress(ga knx.GroupAddress) error {
	if err := b.engine.AddListenGroupAddress(ga); err != nil {
		return err
	}
	metrics.SetListenTableSize(len(b.engine.ListenGroupAddresses()))
	b.logInfo("listening to group address", "group_address", ga.String())
	return nil
}

// SetListenToBroadcasts toggles broadcast reception (programming mode).
func (b *Bridge) SetListenToBroadcasts(listen bool) {
	b.engine.SetListenToBroadcasts(listen)
	b.logInfo("broadcast listening changed", "enabled", listen)
}

// ListeningToBroadcasts reports whether broadcast reception is on.
func (b *Bridge) ListeningToBroadcasts() bool {
	return b.engine.ListeningToBroadcasts()
}

// Datapoints returns the configured datapoints.
func (b *Bridge) Datapoints() Datapoints {
	return b.datapoints
}

// Stats returns the engine counters.
func (b *Bridge) Stats() *EngineStatistics {
	return NewEngineStatistics(b.engine.Stats())
}

// Health builds a health message for the current state.
func (b *Bridge) Health() HealthMessage {
	return b.health.Snapshot()
}

// BridgeMetrics contains bridge-level counters for the API.
type BridgeMetrics struct {
	Running            bool   `json:"running"`
	MQTTConnected      bool   `json:"mqtt_connected"`
	TelegramsPublished uint64 `json:"telegrams_published"`
	StatesPublished    uint64 `json:"states_published"`
	CommandsReceived   uint64 `json:"commands_received"`
	CommandsFailed     uint64 `json:"commands_failed"`
	Datapoints         int    `json:"datapoints"`
}

// GetMetrics returns current bridge counters.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		Running:            b.running.Load(),
		MQTTConnected:      b.mqtt != nil && b.mqtt.IsConnected(),
		TelegramsPublished: b.telegramsPublished.Load(),
		StatesPublished:    b.statesPublished.Load(),
		CommandsReceived:   b.commandsReceived.Load(),
		CommandsFailed:     b.commandsFailed.Load(),
		Datapoints:         len(b.datapoints),
	}
}

// ─── Logging ────────────────────────────────────────────────────

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}
