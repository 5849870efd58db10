package knx

import (
	"fmt"
	"log/slog"
)

// Telegram buffer layout.
const (
	// MaxTelegramSize is the size of the telegram buffer: 6 header bytes,
	// up to 16 payload bytes and one checksum byte.
	MaxTelegramSize = 23

	// HeaderSize is the number of bytes before the payload.
	HeaderSize = 6

	// MinPayloadLength and MaxPayloadLength bound the 4-bit length field,
	// which stores length-1.
	MinPayloadLength = 1
	MaxPayloadLength = 16

	// defaultControlByte is normal priority, not repeated.
	defaultControlByte = 0b10111100

	// defaultRoutingByte is group target, routing counter 6, length 1.
	defaultRoutingByte = 0b11100001

	// checksumSeed is XORed with every covered byte.
	checksumSeed = 0xFF

	// dataOffset is the first byte after the command/first-data byte.
	dataOffset = 8
)

// Bit masks over the buffer.
const (
	repeatFlagMask  = 0b00100000
	priorityMask    = 0b00001100
	groupFlagMask   = 0b10000000
	routingMask     = 0b01110000
	lengthMask      = 0b00001111
	commTypeMask    = 0b11000000
	sequenceMask    = 0b00111100
	commandHighMask = 0b00000011
	commandLowMask  = 0b11000000
	firstDataMask   = 0b00111111
	mainGroupMask   = 0b01111000
	middleGroupMask = 0b00000111
	addressHighMask = 0b11110000
	addressLowMask  = 0b00001111
	controlDataMask = 0b00000011
)

// Priority is the telegram priority carried in control byte bits 2-3.
type Priority uint8

// Priority values.
const (
	PrioritySystem Priority = 0b00
	PriorityHigh   Priority = 0b01
	PriorityAlarm  Priority = 0b10
	PriorityNormal Priority = 0b11
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "system"
	case PriorityHigh:
		return "high"
	case PriorityAlarm:
		return "alarm"
	case PriorityNormal:
		return "normal"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// Command is the 4-bit application command.
type Command uint8

// Command values.
const (
	CommandRead                   Command = 0b0000
	CommandAnswer                 Command = 0b0001
	CommandWrite                  Command = 0b0010
	CommandIndividualAddrWrite    Command = 0b0011
	CommandIndividualAddrRequest  Command = 0b0100
	CommandIndividualAddrResponse Command = 0b0101
	CommandMaskVersionRead        Command = 0b1100
	CommandMaskVersionResponse    Command = 0b1101
	CommandRestart                Command = 0b1110
	CommandEscape                 Command = 0b1111
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CommandRead:
		return "read"
	case CommandAnswer:
		return "answer"
	case CommandWrite:
		return "write"
	case CommandIndividualAddrWrite:
		return "individual_addr_write"
	case CommandIndividualAddrRequest:
		return "individual_addr_request"
	case CommandIndividualAddrResponse:
		return "individual_addr_response"
	case CommandMaskVersionRead:
		return "mask_version_read"
	case CommandMaskVersionResponse:
		return "mask_version_response"
	case CommandRestart:
		return "restart"
	case CommandEscape:
		return "escape"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// Extended commands carried in the first data byte of an Escape telegram.
const (
	ExtCommandAuthRequest  uint8 = 0b010001
	ExtCommandAuthResponse uint8 = 0b010010
)

// CommunicationType is the transport-layer packet type.
type CommunicationType uint8

// Communication types.
const (
	// CommUDP is unnumbered data.
	CommUDP CommunicationType = 0b00
	// CommNDP is numbered data.
	CommNDP CommunicationType = 0b01
	// CommUCD is unnumbered control data.
	CommUCD CommunicationType = 0b10
	// CommNCD is numbered control data.
	CommNCD CommunicationType = 0b11
)

// String returns the communication type name.
func (c CommunicationType) String() string {
	switch c {
	case CommUDP:
		return "UDP"
	case CommNDP:
		return "NDP"
	case CommUCD:
		return "UCD"
	case CommNCD:
		return "NCD"
	default:
		return fmt.Sprintf("comm(%d)", uint8(c))
	}
}

// ControlData is the 2-bit control field of UCD/NCD telegrams.
type ControlData uint8

// Control data values.
const (
	ControlConnect    ControlData = 0b00
	ControlDisconnect ControlData = 0b01
	ControlPosConfirm ControlData = 0b10
	ControlNegConfirm ControlData = 0b11
)

// String returns the control data name.
func (c ControlData) String() string {
	switch c {
	case ControlConnect:
		return "connect"
	case ControlDisconnect:
		return "disconnect"
	case ControlPosConfirm:
		return "pos_confirm"
	case ControlNegConfirm:
		return "neg_confirm"
	default:
		return fmt.Sprintf("control(%d)", uint8(c))
	}
}

// Telegram is a KNX TP-UART telegram held in a fixed 23-byte buffer.
//
// Every field is a bit view over the buffer:
//
//	byte0:    1 0 R 1 P P 0 0   R = not-repeated flag, PP = priority
//	byte1-2:  source  AAAA LLLL MMMMMMMM
//	byte3-4:  target  group: 0 MMMM III SSSSSSSS / individual: AAAA LLLL MMMMMMMM
//	byte5:    G CCC NNNN        G = group flag, CCC = routing, NNNN = length-1
//	byte6:    TT SSSS CC        TT = comm type, SSSS = sequence, CC = command high / control data
//	byte7:    CC DDDDDD         CC = command low, D = first data byte
//	byte8...: payload, then the checksum at index length+6
//
// The zero value is an all-zero buffer; use NewTelegram or Clear to get the
// default control and routing bytes. A Telegram is not safe for concurrent
// mutation.
type Telegram struct {
	buf [MaxTelegramSize]byte
}

// NewTelegram returns a cleared telegram.
func NewTelegram() *Telegram {
	t := &Telegram{}
	t.Clear()
	return t
}

// Clear zeroes the buffer and restores the default control byte
// (normal priority, not repeated) and routing byte (group target,
// routing counter 6, payload length 1).
func (t *Telegram) Clear() {
	t.buf = [MaxTelegramSize]byte{}
	t.buf[0] = defaultControlByte
	t.buf[5] = defaultRoutingByte
}

// Clone returns an independent copy of the telegram.
func (t *Telegram) Clone() *Telegram {
	c := *t
	return &c
}

// RawByte returns the buffer byte at index, or 0 if index is out of range.
func (t *Telegram) RawByte(index int) byte {
	if index < 0 || index >= MaxTelegramSize {
		return 0
	}
	return t.buf[index]
}

// SetRawByte stores a wire byte at index. It is used when reassembling a
// telegram from the line.
func (t *Telegram) SetRawByte(index int, b byte) error {
	if index < 0 || index >= MaxTelegramSize {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	t.buf[index] = b
	return nil
}

// Bytes returns a copy of the wire bytes, header through checksum.
func (t *Telegram) Bytes() []byte {
	out := make([]byte, t.TotalLength())
	copy(out, t.buf[:])
	return out
}

// Repeated reports whether the telegram is a repetition. The wire flag is
// inverted: bit 5 set means "not repeated".
func (t *Telegram) Repeated() bool {
	return t.buf[0]&repeatFlagMask == 0
}

// SetRepeated sets the repeat flag.
func (t *Telegram) SetRepeated(repeated bool) {
	if repeated {
		t.buf[0] &^= repeatFlagMask
	} else {
		t.buf[0] |= repeatFlagMask
	}
}

// Priority returns the telegram priority.
func (t *Telegram) Priority() Priority {
	return Priority((t.buf[0] & priorityMask) >> 2)
}

// SetPriority sets the telegram priority.
func (t *Telegram) SetPriority(p Priority) {
	t.buf[0] = (t.buf[0] &^ priorityMask) | (byte(p)<<2)&priorityMask
}

// SourceAddress returns the sender's individual address.
func (t *Telegram) SourceAddress() IndividualAddress {
	return IndividualAddress{
		Area:   (t.buf[1] & addressHighMask) >> 4,
		Line:   t.buf[1] & addressLowMask,
		Member: t.buf[2],
	}
}

// SetSourceAddress sets the sender's individual address.
func (t *Telegram) SetSourceAddress(ia IndividualAddress) {
	t.buf[1] = (ia.Area << 4) | (ia.Line & addressLowMask)
	t.buf[2] = ia.Member
}

// IsTargetGroup reports whether the target is a group address.
func (t *Telegram) IsTargetGroup() bool {
	return t.buf[5]&groupFlagMask != 0
}

// TargetGroupAddress interprets the target bytes as a group address.
func (t *Telegram) TargetGroupAddress() GroupAddress {
	return GroupAddress{
		Main:   (t.buf[3] & mainGroupMask) >> 3,
		Middle: t.buf[3] & middleGroupMask,
		Sub:    t.buf[4],
	}
}

// SetTargetGroupAddress sets a group target and raises the group flag.
func (t *Telegram) SetTargetGroupAddress(ga GroupAddress) {
	t.buf[3] = ((ga.Main << 3) & mainGroupMask) | (ga.Middle & middleGroupMask)
	t.buf[4] = ga.Sub
	t.buf[5] |= groupFlagMask
}

// TargetIndividualAddress interprets the target bytes as an individual address.
func (t *Telegram) TargetIndividualAddress() IndividualAddress {
	return IndividualAddress{
		Area:   (t.buf[3] & addressHighMask) >> 4,
		Line:   t.buf[3] & addressLowMask,
		Member: t.buf[4],
	}
}

// SetTargetIndividualAddress sets an individual target and clears the
// group flag.
func (t *Telegram) SetTargetIndividualAddress(ia IndividualAddress) {
	t.buf[3] = (ia.Area << 4) | (ia.Line & addressLowMask)
	t.buf[4] = ia.Member
	t.buf[5] &^= groupFlagMask
}

// RoutingCounter returns the routing counter (0-7).
func (t *Telegram) RoutingCounter() uint8 {
	return (t.buf[5] & routingMask) >> 4
}

// SetRoutingCounter sets the routing counter. The group flag and payload
// length are preserved.
func (t *Telegram) SetRoutingCounter(counter uint8) {
	t.buf[5] = (t.buf[5] &^ routingMask) | ((counter << 4) & routingMask)
}

// PayloadLength returns the payload length (1-16).
func (t *Telegram) PayloadLength() int {
	return int(t.buf[5]&lengthMask) + 1
}

// SetPayloadLength sets the payload length. Valid lengths are 1-16.
func (t *Telegram) SetPayloadLength(length int) error {
	if length < MinPayloadLength || length > MaxPayloadLength {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidPayloadLength, length, MinPayloadLength, MaxPayloadLength)
	}
	t.buf[5] = (t.buf[5] &^ lengthMask) | byte(length-1) //nolint:gosec // bounded above
	return nil
}

// setLength is SetPayloadLength for the fixed lengths of the typed setters.
func (t *Telegram) setLength(length int) {
	t.buf[5] = (t.buf[5] &^ lengthMask) | byte(length-1)&lengthMask //nolint:gosec // callers pass 2-16
}

// Command returns the 4-bit command. The high two bits live in byte 6,
// the low two bits in byte 7.
func (t *Telegram) Command() Command {
	return Command((t.buf[6]&commandHighMask)<<2 | (t.buf[7]&commandLowMask)>>6)
}

// SetCommand sets the 4-bit command across bytes 6 and 7.
func (t *Telegram) SetCommand(c Command) {
	t.buf[6] = (t.buf[6] &^ commandHighMask) | (byte(c)>>2)&commandHighMask
	t.buf[7] = (t.buf[7] &^ commandLowMask) | (byte(c)<<6)&commandLowMask
}

// CommunicationType returns the transport packet type.
func (t *Telegram) CommunicationType() CommunicationType {
	return CommunicationType((t.buf[6] & commTypeMask) >> 6)
}

// SetCommunicationType sets the transport packet type.
func (t *Telegram) SetCommunicationType(c CommunicationType) {
	t.buf[6] = (t.buf[6] &^ commTypeMask) | (byte(c)<<6)&commTypeMask
}

// SequenceNumber returns the transport sequence number (0-15).
func (t *Telegram) SequenceNumber() uint8 {
	return (t.buf[6] & sequenceMask) >> 2
}

// SetSequenceNumber sets the transport sequence number.
func (t *Telegram) SetSequenceNumber(seq uint8) {
	t.buf[6] = (t.buf[6] &^ sequenceMask) | (seq<<2)&sequenceMask
}

// ControlData returns the control field of a UCD/NCD telegram.
//
// It shares byte 6 bits 0-1 with the high command bits. Control data is
// only meaningful on control telegrams, which carry no command.
func (t *Telegram) ControlData() ControlData {
	return ControlData(t.buf[6] & controlDataMask)
}

// SetControlData sets the control field. Setting it on a telegram that
// also carries a command overwrites the command's high bits.
func (t *Telegram) SetControlData(c ControlData) {
	t.buf[6] = (t.buf[6] &^ controlDataMask) | byte(c)&controlDataMask
}

// FirstDataByte returns the 6-bit data slot in byte 7.
func (t *Telegram) FirstDataByte() uint8 {
	return t.buf[7] & firstDataMask
}

// SetFirstDataByte sets the 6-bit data slot in byte 7. The command's low
// bits are preserved.
func (t *Telegram) SetFirstDataByte(data uint8) {
	t.buf[7] = (t.buf[7] &^ firstDataMask) | (data & firstDataMask)
}

// TotalLength returns the number of wire bytes: header, payload and checksum.
func (t *Telegram) TotalLength() int {
	return HeaderSize + t.PayloadLength() + 1
}

// checksumIndex is the buffer position of the checksum byte.
func (t *Telegram) checksumIndex() int {
	return t.PayloadLength() + HeaderSize
}

// CalculateChecksum returns 0xFF XORed with every byte from the control
// byte through the last payload byte.
func (t *Telegram) CalculateChecksum() byte {
	sum := byte(checksumSeed)
	for _, b := range t.buf[:t.checksumIndex()] {
		sum ^= b
	}
	return sum
}

// CreateChecksum stores the calculated checksum after the payload.
func (t *Telegram) CreateChecksum() {
	t.buf[t.checksumIndex()] = t.CalculateChecksum()
}

// Checksum returns the stored checksum byte.
func (t *Telegram) Checksum() byte {
	return t.buf[t.checksumIndex()]
}

// VerifyChecksum reports whether the stored checksum matches the buffer.
func (t *Telegram) VerifyChecksum() bool {
	return t.Checksum() == t.CalculateChecksum()
}

// Validate returns ErrChecksumMismatch if the stored checksum is wrong.
func (t *Telegram) Validate() error {
	if want := t.CalculateChecksum(); t.Checksum() != want {
		return fmt.Errorf("%w: stored 0x%02X, calculated 0x%02X", ErrChecksumMismatch, t.Checksum(), want)
	}
	return nil
}

// TargetString returns the target in its display form, "1/2/3" for group
// targets and "1.1.5" for individual targets.
func (t *Telegram) TargetString() string {
	if t.IsTargetGroup() {
		return t.TargetGroupAddress().String()
	}
	return t.TargetIndividualAddress().String()
}

// String returns a compact human-readable representation.
func (t *Telegram) String() string {
	return fmt.Sprintf("Telegram{%s -> %s, %s, %s, len:%d, data:% X}",
		t.SourceAddress(), t.TargetString(), t.Command(), t.CommunicationType(),
		t.PayloadLength(), t.Bytes())
}

// LogValue implements slog.LogValuer so a telegram logs as its decoded
// fields rather than a byte dump.
func (t *Telegram) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("source", t.SourceAddress().String()),
		slog.String("target", t.TargetString()),
		slog.Bool("group", t.IsTargetGroup()),
		slog.String("priority", t.Priority().String()),
		slog.Bool("repeated", t.Repeated()),
		slog.Int("routing", int(t.RoutingCounter())),
		slog.Int("payload_length", t.PayloadLength()),
		slog.String("comm", t.CommunicationType().String()),
		slog.String("command", t.Command().String()),
		slog.Int("first_data", int(t.FirstDataByte())),
		slog.Bool("checksum_ok", t.VerifyChecksum()),
	}
	switch t.CommunicationType() {
	case CommNDP, CommNCD:
		attrs = append(attrs, slog.Int("seq", int(t.SequenceNumber())))
	}
	if t.CommunicationType() == CommUCD || t.CommunicationType() == CommNCD {
		attrs = append(attrs, slog.String("control", t.ControlData().String()))
	}
	return slog.GroupValue(attrs...)
}
