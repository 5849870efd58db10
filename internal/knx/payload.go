package knx

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Payload lengths required by each typed encoding. The length counts the
// command byte pair, so a value carried entirely in the first data byte
// has length 2.
const (
	LengthSmall     = 2  // bool, 4-bit int, 4-bit dim
	LengthOneByte   = 3  // 1-byte int
	LengthTwoByte   = 4  // 2-byte int, 2-byte float
	LengthThreeByte = 5  // time, date
	LengthFourByte  = 6  // 4-byte float
	LengthText      = 16 // 14-byte text

	// TextSize is the number of text bytes in a LengthText payload.
	TextSize = 14
)

// First data byte masks for the small encodings.
const (
	fourBitValueMask = 0x0F
	dimDirectionMask = 0x08
	dimStepsMask     = 0x07
)

// DPT 9 encoding constants.
const (
	dpt9Scale        = 100.0
	dpt9MinMantissa  = -2048.0
	dpt9MaxMantissa  = 2047.0
	dpt9MaxExponent  = 15
	dpt9MantissaBits = 0x7FF
	dpt9SignBit      = 0x80
	dpt9ExponentMask = 0x78
	dpt9HighMantMask = 0x07
)

// Time and date field masks.
const (
	weekdayMask = 0b11100000
	hourMask    = 0b00011111
	minuteMask  = 0b00111111
	secondMask  = 0b00111111
	dayMask     = 0b00011111
	monthMask   = 0b00001111
)

// TimeOfDay is the 3-byte time payload (DPT 10.001). Weekday 0 means
// "no day", 1 is Monday.
type TimeOfDay struct {
	Weekday uint8 `json:"weekday"`
	Hour    uint8 `json:"hour"`
	Minute  uint8 `json:"minute"`
	Second  uint8 `json:"second"`
}

// String formats the time as "15:04:05".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// CalendarDate is the 3-byte date payload (DPT 11.001). Year is the
// two-digit year as carried on the wire.
type CalendarDate struct {
	Day   uint8 `json:"day"`
	Month uint8 `json:"month"`
	Year  uint8 `json:"year"`
}

// String formats the date as "DD.MM.YY".
func (d CalendarDate) String() string {
	return fmt.Sprintf("%02d.%02d.%02d", d.Day, d.Month, d.Year)
}

// checkLength returns ErrWrongPayloadLength unless the stored length is want.
func (t *Telegram) checkLength(want int) error {
	if got := t.PayloadLength(); got != want {
		return fmt.Errorf("%w: have %d, need %d", ErrWrongPayloadLength, got, want)
	}
	return nil
}

// SetBool stores a boolean in bit 0 of the first data byte.
func (t *Telegram) SetBool(v bool) {
	t.setLength(LengthSmall)
	var b uint8
	if v {
		b = 1
	}
	t.SetFirstDataByte(b)
}

// Bool returns the boolean in bit 0 of the first data byte.
func (t *Telegram) Bool() (bool, error) {
	if err := t.checkLength(LengthSmall); err != nil {
		return false, err
	}
	return t.FirstDataByte()&1 == 1, nil
}

// SetFourBitInt stores a 4-bit value in the first data byte.
func (t *Telegram) SetFourBitInt(v uint8) {
	t.setLength(LengthSmall)
	t.SetFirstDataByte(v & fourBitValueMask)
}

// FourBitInt returns the 4-bit value in the first data byte.
func (t *Telegram) FourBitInt() (uint8, error) {
	if err := t.checkLength(LengthSmall); err != nil {
		return 0, err
	}
	return t.FirstDataByte() & fourBitValueMask, nil
}

// SetFourBitDim stores a dimming/blind step (DPT 3): direction in bit 3,
// step code in bits 0-2.
func (t *Telegram) SetFourBitDim(increase bool, steps uint8) {
	t.setLength(LengthSmall)
	var v uint8
	if increase {
		v = dimDirectionMask
	}
	t.SetFirstDataByte(v | steps&dimStepsMask)
}

// FourBitDirection returns the direction bit of a dimming step.
func (t *Telegram) FourBitDirection() (bool, error) {
	if err := t.checkLength(LengthSmall); err != nil {
		return false, err
	}
	return t.FirstDataByte()&dimDirectionMask != 0, nil
}

// FourBitSteps returns the step code of a dimming step.
func (t *Telegram) FourBitSteps() (uint8, error) {
	if err := t.checkLength(LengthSmall); err != nil {
		return 0, err
	}
	return t.FirstDataByte() & dimStepsMask, nil
}

// SetOneByteInt stores a 1-byte value after the command.
func (t *Telegram) SetOneByteInt(v uint8) {
	t.setLength(LengthOneByte)
	t.buf[dataOffset] = v
}

// OneByteInt returns the 1-byte value.
func (t *Telegram) OneByteInt() (uint8, error) {
	if err := t.checkLength(LengthOneByte); err != nil {
		return 0, err
	}
	return t.buf[dataOffset], nil
}

// SetTwoByteInt stores a big-endian 2-byte value.
func (t *Telegram) SetTwoByteInt(v uint16) {
	t.setLength(LengthTwoByte)
	binary.BigEndian.PutUint16(t.buf[dataOffset:], v)
}

// TwoByteInt returns the big-endian 2-byte value.
func (t *Telegram) TwoByteInt() (uint16, error) {
	if err := t.checkLength(LengthTwoByte); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(t.buf[dataOffset:]), nil
}

// SetTwoByteFloat stores a KNX 2-byte float (DPT 9).
//
// The value is scaled by 100 and halved until it fits a signed 12-bit
// mantissa, counting an exponent per halving. Values that need an
// exponent above 15 (|v| > 670760.96) return ErrValueOutOfRange and leave
// the telegram unchanged.
func (t *Telegram) SetTwoByteFloat(value float64) error {
	hi, lo, err := encodeDPT9(value)
	if err != nil {
		return err
	}
	t.setLength(LengthTwoByte)
	t.buf[dataOffset] = hi
	t.buf[dataOffset+1] = lo
	return nil
}

// TwoByteFloat returns the KNX 2-byte float (DPT 9).
func (t *Telegram) TwoByteFloat() (float64, error) {
	if err := t.checkLength(LengthTwoByte); err != nil {
		return 0, err
	}
	return decodeDPT9(t.buf[dataOffset], t.buf[dataOffset+1]), nil
}

// encodeDPT9 packs value as sign(1) exponent(4) mantissa(11).
func encodeDPT9(value float64) (hi, lo byte, err error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, 0, fmt.Errorf("%w: %v", ErrValueOutOfRange, value)
	}

	v := value * dpt9Scale
	exponent := 0
	for ; v < dpt9MinMantissa; v /= 2 {
		exponent++
	}
	for ; v > dpt9MaxMantissa; v /= 2 {
		exponent++
	}
	if exponent > dpt9MaxExponent {
		return 0, 0, fmt.Errorf("%w: %v exceeds 2-byte float range", ErrValueOutOfRange, value)
	}

	rounded := int(math.Round(v))
	mantissa := rounded & dpt9MantissaBits
	hi = byte(exponent<<3 | mantissa>>8) //nolint:gosec // exponent <= 15, mantissa 11 bits
	// The sign follows the rounded mantissa so that tiny negatives encode as zero.
	if rounded < 0 {
		hi |= dpt9SignBit
	}
	return hi, byte(mantissa), nil //nolint:gosec // low byte of mantissa
}

// decodeDPT9 reverses encodeDPT9, applying the -2048 offset for negatives.
func decodeDPT9(hi, lo byte) float64 {
	exponent := int((hi & dpt9ExponentMask) >> 3)
	mantissa := int(hi&dpt9HighMantMask)<<8 | int(lo)
	if hi&dpt9SignBit != 0 {
		mantissa += int(dpt9MinMantissa)
	}
	return float64(mantissa) / dpt9Scale * math.Pow(2, float64(exponent))
}

// SetTime stores a 3-byte time of day.
func (t *Telegram) SetTime(tod TimeOfDay) {
	t.setLength(LengthThreeByte)
	t.buf[dataOffset] = (tod.Weekday<<5)&weekdayMask | tod.Hour&hourMask
	t.buf[dataOffset+1] = tod.Minute & minuteMask
	t.buf[dataOffset+2] = tod.Second & secondMask
}

// Time returns the 3-byte time of day.
func (t *Telegram) Time() (TimeOfDay, error) {
	if err := t.checkLength(LengthThreeByte); err != nil {
		return TimeOfDay{}, err
	}
	return TimeOfDay{
		Weekday: (t.buf[dataOffset] & weekdayMask) >> 5,
		Hour:    t.buf[dataOffset] & hourMask,
		Minute:  t.buf[dataOffset+1] & minuteMask,
		Second:  t.buf[dataOffset+2] & secondMask,
	}, nil
}

// SetDate stores a 3-byte calendar date.
func (t *Telegram) SetDate(d CalendarDate) {
	t.setLength(LengthThreeByte)
	t.buf[dataOffset] = d.Day & dayMask
	t.buf[dataOffset+1] = d.Month & monthMask
	t.buf[dataOffset+2] = d.Year
}

// Date returns the 3-byte calendar date.
func (t *Telegram) Date() (CalendarDate, error) {
	if err := t.checkLength(LengthThreeByte); err != nil {
		return CalendarDate{}, err
	}
	return CalendarDate{
		Day:   t.buf[dataOffset] & dayMask,
		Month: t.buf[dataOffset+1] & monthMask,
		Year:  t.buf[dataOffset+2],
	}, nil
}

// SetFourByteFloat stores an IEEE-754 single (DPT 14) big-endian.
func (t *Telegram) SetFourByteFloat(v float32) {
	t.setLength(LengthFourByte)
	binary.BigEndian.PutUint32(t.buf[dataOffset:], math.Float32bits(v))
}

// FourByteFloat returns the IEEE-754 single (DPT 14).
func (t *Telegram) FourByteFloat() (float32, error) {
	if err := t.checkLength(LengthFourByte); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(t.buf[dataOffset:])), nil
}

// SetText stores up to 14 bytes of text (DPT 16), zero padded. Longer
// strings are truncated.
func (t *Telegram) SetText(s string) {
	t.setLength(LengthText)
	field := t.buf[dataOffset : dataOffset+TextSize]
	clear(field)
	copy(field, s)
}

// Text returns the 14-byte text up to the first zero byte.
func (t *Telegram) Text() (string, error) {
	if err := t.checkLength(LengthText); err != nil {
		return "", err
	}
	field := t.buf[dataOffset : dataOffset+TextSize]
	for i, b := range field {
		if b == 0 {
			return string(field[:i]), nil
		}
	}
	return string(field), nil
}
