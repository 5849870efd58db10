package tpuart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tpuart/internal/knx"
)

// Bytes exchanged with the transceiver outside of telegram frames.
const (
	byteResetRequest    byte = 0x01
	byteStateRequest    byte = 0x02
	byteResetIndication byte = 0x03
	byteNotAddressed    byte = 0x10
	byteAck             byte = 0x11
	byteConfirmOK       byte = 0x8B
	byteConfirmNAK      byte = 0x0B

	// Frame unit markers; the low bits carry the byte index.
	frameContinue byte = 0x80
	frameEnd      byte = 0x40

	// A control byte matches 10R1PP00 with R and PP ignored.
	controlByteIgnore  byte = 0x2C
	controlBytePattern byte = 0xBC
)

// Default timings.
const (
	// DefaultSerialTimeout bounds every blocking byte read.
	DefaultSerialTimeout = 1000 * time.Millisecond

	// DefaultSettleDelay is waited after ack, not-addressed and each send.
	DefaultSettleDelay = 100 * time.Millisecond

	// DefaultPollInterval is how long Run idles when no byte is pending.
	DefaultPollInterval = 5 * time.Millisecond
)

// MaskVersion is the device descriptor reported to MaskVersionRead
// requests (BIM M 112).
const MaskVersion uint16 = 0x0701

// IsControlByte reports whether b starts a telegram.
func IsControlByte(b byte) bool {
	return b|controlByteIgnore == controlBytePattern
}

// EventType classifies the outcome of one Poll.
type EventType int

// Event types.
const (
	// EventNone means no byte was pending.
	EventNone EventType = iota
	// EventResetIndication means the transceiver reported a reset.
	EventResetIndication
	// EventTelegram is a telegram addressed to us.
	EventTelegram
	// EventIrrelevantTelegram is a telegram for someone else.
	EventIrrelevantTelegram
	// EventUnknown is a byte that started nothing recognisable.
	EventUnknown
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventNone:
		return "none"
	case EventResetIndication:
		return "reset_indication"
	case EventTelegram:
		return "telegram"
	case EventIrrelevantTelegram:
		return "irrelevant_telegram"
	case EventUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is the result of a Poll.
type Event struct {
	Type EventType

	// Telegram is set for EventTelegram and EventIrrelevantTelegram. It is
	// a copy owned by the receiver.
	Telegram *knx.Telegram

	// ChecksumOK reports whether Telegram's checksum verified.
	ChecksumOK bool

	// Byte is the discarded byte for EventUnknown.
	Byte byte

	// ReceivedAt is when the first byte was taken off the line.
	ReceivedAt time.Time
}

// Handler receives events from Run.
type Handler func(Event)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds engine configuration.
type Config struct {
	// Address is our individual address. Required.
	Address knx.IndividualAddress

	// Line is the serial framing enforced before each read.
	// Default: DefaultLineSettings.
	Line LineSettings

	// SerialTimeout bounds every byte read. Default: 1s.
	SerialTimeout time.Duration

	// SettleDelay is waited after ack, not-addressed and sends. Default: 100ms.
	SettleDelay time.Duration

	// PollInterval is the idle wait in Run. Default: 5ms.
	PollInterval time.Duration

	// ListenBroadcast starts the engine in programming mode, accepting
	// telegrams to 0/0/0.
	ListenBroadcast bool

	// DisableAutoResponses turns off the individual address and mask
	// version answers.
	DisableAutoResponses bool
}

// Stats holds operational statistics.
type Stats struct {
	TelegramsRx         uint64
	TelegramsIrrelevant uint64
	TelegramsTx         uint64
	NegativeAcks        uint64
	Timeouts            uint64
	UnknownBytes        uint64
	ResetIndications    uint64
	ConfirmsSent        uint64
	ChecksumErrors      uint64
	LastActivity        time.Time
}

// Engine drives the TP-UART line protocol over a Duplex.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Poll, Send, Reset and StateRequest are serialised by one mutex, so
//     receive assembly and transmission never interleave on the line.
type Engine struct {
	cfg    Config
	port   Duplex
	listen *ListenTable

	broadcast atomic.Bool

	// mu guards the line and both telegram buffers.
	mu      sync.Mutex
	rx      *knx.Telegram
	confirm *knx.Telegram

	// sleep is replaced in tests.
	sleep func(time.Duration)

	logger   Logger
	loggerMu sync.RWMutex

	telegramsRx         atomic.Uint64
	telegramsIrrelevant atomic.Uint64
	telegramsTx         atomic.Uint64
	negativeAcks        atomic.Uint64
	timeouts            atomic.Uint64
	unknownBytes        atomic.Uint64
	resetIndications    atomic.Uint64
	confirmsSent        atomic.Uint64
	checksumErrors      atomic.Uint64
	lastActivity        atomic.Int64
}

// New creates an engine on port.
//
// Parameters:
//   - port: Byte link to the transceiver
//   - cfg: Engine configuration; zero durations take their defaults
//
// Returns:
//   - *Engine: Ready engine (call Reset to initialise the transceiver)
//   - error: ErrInvalidAddress if cfg.Address is out of range
func New(port Duplex, cfg Config) (*Engine, error) {
	if !cfg.Address.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, cfg.Address)
	}
	if cfg.Line == (LineSettings{}) {
		cfg.Line = DefaultLineSettings
	}
	if cfg.SerialTimeout <= 0 {
		cfg.SerialTimeout = DefaultSerialTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	} else if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	e := &Engine{
		cfg:     cfg,
		port:    port,
		listen:  NewListenTable(),
		rx:      knx.NewTelegram(),
		confirm: knx.NewTelegram(),
		sleep:   time.Sleep,
		logger:  noopLogger{},
	}
	e.broadcast.Store(cfg.ListenBroadcast)
	return e, nil
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.loggerMu.Lock()
	defer e.loggerMu.Unlock()
	e.logger = logger
}

func (e *Engine) log() Logger {
	e.loggerMu.RLock()
	defer e.loggerMu.RUnlock()
	return e.logger
}

// Address returns our individual address.
func (e *Engine) Address() knx.IndividualAddress {
	return e.cfg.Address
}

// AddListenGroupAddress adds ga to the listen table. A full table is
// logged and returned as ErrListenTableFull; the engine keeps running.
func (e *Engine) AddListenGroupAddress(ga knx.GroupAddress) error {
	if err := e.listen.Add(ga); err != nil {
		e.log().Warn("listen table full, group address ignored",
			"group_address", ga.String(),
			"capacity", MaxListenGroupAddresses,
		)
		return err
	}
	return nil
}

// IsListeningToGroupAddress reports whether ga is in the listen table.
func (e *Engine) IsListeningToGroupAddress(ga knx.GroupAddress) bool {
	return e.listen.Contains(ga)
}

// ListenGroupAddresses returns the listen table in insertion order.
func (e *Engine) ListenGroupAddresses() []knx.GroupAddress {
	return e.listen.Entries()
}

// SetListenToBroadcasts enables or disables programming mode.
func (e *Engine) SetListenToBroadcasts(listen bool) {
	e.broadcast.Store(listen)
}

// ListeningToBroadcasts reports whether programming mode is on.
func (e *Engine) ListeningToBroadcasts() bool {
	return e.broadcast.Load()
}

// Poll performs at most one classification step and never blocks when no
// byte is pending.
//
// Returns:
//   - Event: The classified event (EventNone when the line is idle)
//   - error: ErrReadTimeout if a telegram stalled mid-frame (the partial
//     telegram is dropped), or a write error from the acknowledgement
func (e *Engine) Poll() (Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.port.Available() {
		return Event{Type: EventNone}, nil
	}

	b, err := e.readByte()
	if err != nil {
		return Event{}, e.readFailed(err, "first byte")
	}
	now := time.Now()
	e.lastActivity.Store(now.UnixNano())

	switch {
	case IsControlByte(b):
		return e.receiveTelegram(b, now)

	case b == byteResetIndication:
		e.resetIndications.Add(1)
		e.log().Info("transceiver reset indication")
		return Event{Type: EventResetIndication, ReceivedAt: now}, nil

	default:
		e.unknownBytes.Add(1)
		e.log().Debug("unknown byte discarded", "byte", fmt.Sprintf("0x%02X", b))
		return Event{Type: EventUnknown, Byte: b, ReceivedAt: now}, nil
	}
}

// receiveTelegram assembles the telegram that starts with control byte
// first, acknowledges it and handles transport confirmations.
// Caller must hold e.mu.
func (e *Engine) receiveTelegram(first byte, now time.Time) (Event, error) {
	rx := e.rx
	rx.Clear()
	if err := rx.SetRawByte(0, first); err != nil {
		return Event{}, err
	}

	for i := 1; i < knx.HeaderSize; i++ {
		b, err := e.readByte()
		if err != nil {
			return Event{}, e.readFailed(err, fmt.Sprintf("header byte %d", i))
		}
		if err := rx.SetRawByte(i, b); err != nil {
			return Event{}, err
		}
	}

	// Payload then checksum; the length comes from header byte 5.
	total := rx.TotalLength()
	for i := knx.HeaderSize; i < total; i++ {
		b, err := e.readByte()
		if err != nil {
			return Event{}, e.readFailed(err, fmt.Sprintf("byte %d of %d", i, total))
		}
		if err := rx.SetRawByte(i, b); err != nil {
			return Event{}, err
		}
	}

	interested := e.isInterested(rx)
	reply := byteNotAddressed
	if interested {
		reply = byteAck
	}
	if err := e.port.Write([]byte{reply}); err != nil {
		return Event{}, fmt.Errorf("tpuart: acknowledge: %w", err)
	}
	e.settle()

	checksumOK := rx.VerifyChecksum()
	if !checksumOK {
		e.checksumErrors.Add(1)
		e.log().Warn("telegram checksum mismatch", "telegram", rx)
	}

	ev := Event{
		Type:       EventTelegram,
		Telegram:   rx.Clone(),
		ChecksumOK: checksumOK,
		ReceivedAt: now,
	}

	if !interested {
		e.telegramsIrrelevant.Add(1)
		ev.Type = EventIrrelevantTelegram
		return ev, nil
	}

	e.telegramsRx.Add(1)
	e.log().Debug("telegram received", "telegram", rx)

	switch rx.CommunicationType() {
	case knx.CommNCD:
		if err := e.sendPositiveConfirm(rx.SourceAddress(), rx.SequenceNumber()); err != nil {
			e.log().Warn("positive confirmation failed", "target", rx.SourceAddress().String(), "error", err)
		}
	case knx.CommUCD:
		e.log().Debug("control telegram received", "control", rx.ControlData().String())
	}

	if !e.cfg.DisableAutoResponses {
		e.autoRespond(ev.Telegram)
	}

	return ev, nil
}

// isInterested applies the listen filter: a listened group, our own
// individual address, or 0/0/0 in programming mode.
func (e *Engine) isInterested(t *knx.Telegram) bool {
	if !t.IsTargetGroup() {
		return t.TargetIndividualAddress() == e.cfg.Address
	}
	ga := t.TargetGroupAddress()
	if e.listen.Contains(ga) {
		return true
	}
	return e.broadcast.Load() && ga.IsBroadcast()
}

// sendPositiveConfirm acknowledges a numbered control telegram on the
// dedicated confirmation buffer. Caller must hold e.mu.
func (e *Engine) sendPositiveConfirm(target knx.IndividualAddress, seq uint8) error {
	c := e.confirm
	c.Clear()
	c.SetSourceAddress(e.cfg.Address)
	c.SetTargetIndividualAddress(target)
	c.SetSequenceNumber(seq)
	c.SetCommunicationType(knx.CommNCD)
	c.SetControlData(knx.ControlPosConfirm)
	if err := c.SetPayloadLength(1); err != nil {
		return err
	}
	c.CreateChecksum()

	if err := e.sendLocked(c); err != nil {
		return err
	}
	e.confirmsSent.Add(1)
	return nil
}

// autoRespond answers management requests the gateway handles itself.
// Caller must hold e.mu.
func (e *Engine) autoRespond(t *knx.Telegram) {
	var (
		answer *knx.Telegram
		err    error
	)

	switch t.Command() {
	case knx.CommandIndividualAddrRequest:
		if !t.IsTargetGroup() || !t.TargetGroupAddress().IsBroadcast() || !e.broadcast.Load() {
			return
		}
		answer, err = e.individualAddressFrame()

	case knx.CommandMaskVersionRead:
		if t.IsTargetGroup() {
			return
		}
		answer, err = e.maskVersionFrame(t.SourceAddress())

	default:
		return
	}

	if err == nil {
		err = e.sendLocked(answer)
	}
	if err != nil {
		e.log().Warn("automatic response failed", "command", t.Command().String(), "error", err)
		return
	}
	e.log().Info("automatic response sent", "command", t.Command().String(), "target", answer.TargetString())
}

// Send transmits t and waits for the transceiver's confirmation.
//
// Returns:
//   - error: nil on positive confirmation, ErrNegativeAck on negative
//     confirmation, ErrReadTimeout if no confirmation arrived
func (e *Engine) Send(t *knx.Telegram) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sendLocked(t)
}

// sendLocked writes t as frame units and reads the confirmation.
// Caller must hold e.mu.
func (e *Engine) sendLocked(t *knx.Telegram) error {
	defer e.settle()

	n := t.TotalLength()
	for i := range n {
		marker := frameContinue
		if i == n-1 {
			marker = frameEnd
		}
		unit := [2]byte{marker | byte(i), t.RawByte(i)} //nolint:gosec // i < MaxTelegramSize
		if err := e.port.Write(unit[:]); err != nil {
			return fmt.Errorf("tpuart: send: %w", err)
		}
	}
	e.lastActivity.Store(time.Now().UnixNano())

	for {
		b, err := e.readByte()
		if err != nil {
			return e.readFailed(err, "send confirmation")
		}
		switch b {
		case byteConfirmOK:
			e.telegramsTx.Add(1)
			e.log().Debug("telegram sent", "telegram", t)
			return nil
		case byteConfirmNAK:
			e.negativeAcks.Add(1)
			return fmt.Errorf("%w: %s", ErrNegativeAck, t.TargetString())
		default:
			e.unknownBytes.Add(1)
			e.log().Debug("byte discarded while awaiting confirmation", "byte", fmt.Sprintf("0x%02X", b))
		}
	}
}

// Reset asks the transceiver to reset. It does not wait for the reset
// indication; that arrives through Poll.
func (e *Engine) Reset() error {
	return e.writeService(byteResetRequest, "reset")
}

// StateRequest asks the transceiver for its state.
func (e *Engine) StateRequest() error {
	return e.writeService(byteStateRequest, "state request")
}

func (e *Engine) writeService(b byte, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.port.Write([]byte{b}); err != nil {
		return fmt.Errorf("tpuart: %s: %w", name, err)
	}
	return nil
}

// Run polls until ctx is cancelled, passing every non-idle event to
// handler. Handlers see irrelevant telegrams too; filter on Event.Type.
//
// Run returns nil when ctx is cancelled and ErrPortClosed if the port goes
// away. Other errors (stalled frames, write failures) are logged and
// polling continues.
func (e *Engine) Run(ctx context.Context, handler Handler) error {
	idle := time.NewTimer(e.cfg.PollInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		ev, err := e.Poll()
		if err != nil {
			if errors.Is(err, ErrPortClosed) {
				return err
			}
			e.log().Warn("poll failed", "error", err)
			continue
		}

		if ev.Type == EventNone {
			idle.Reset(e.cfg.PollInterval)
			select {
			case <-ctx.Done():
				return nil
			case <-idle.C:
			}
			continue
		}

		if handler != nil {
			handler(ev)
		}
	}
}

// Stats returns current operational statistics.
func (e *Engine) Stats() Stats {
	var last time.Time
	if ns := e.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		TelegramsRx:         e.telegramsRx.Load(),
		TelegramsIrrelevant: e.telegramsIrrelevant.Load(),
		TelegramsTx:         e.telegramsTx.Load(),
		NegativeAcks:        e.negativeAcks.Load(),
		Timeouts:            e.timeouts.Load(),
		UnknownBytes:        e.unknownBytes.Load(),
		ResetIndications:    e.resetIndications.Load(),
		ConfirmsSent:        e.confirmsSent.Load(),
		ChecksumErrors:      e.checksumErrors.Load(),
		LastActivity:        last,
	}
}

// readByte enforces the line settings then reads one byte within the
// serial timeout. Caller must hold e.mu.
func (e *Engine) readByte() (byte, error) {
	if err := e.port.Configure(e.cfg.Line); err != nil {
		return 0, fmt.Errorf("tpuart: configure line: %w", err)
	}
	return e.port.ReceiveByte(e.cfg.SerialTimeout)
}

// readFailed counts timeouts and wraps err with what was being read.
func (e *Engine) readFailed(err error, what string) error {
	if errors.Is(err, ErrReadTimeout) {
		e.timeouts.Add(1)
	}
	return fmt.Errorf("tpuart: read %s: %w", what, err)
}

func (e *Engine) settle() {
	if e.cfg.SettleDelay > 0 {
		e.sleep(e.cfg.SettleDelay)
	}
}
