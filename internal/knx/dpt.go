package knx

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KNX Datapoint Type scaling constants.
const (
	// dpt5MaxValue is the maximum raw value for DPT5 (1-byte unsigned).
	dpt5MaxValue = 255

	// dpt5PercentMax is the full-scale percentage for DPT5.001.
	dpt5PercentMax = 100

	// dpt5AngleMax is the maximum angle in degrees for DPT5.003.
	dpt5AngleMax = 360

	// dpt17MaxScene is the maximum scene number for DPT17.
	dpt17MaxScene = 63
)

// DPT represents a KNX Datapoint Type identifier.
//
// Format: "major.minor" (e.g., "1.001", "9.001"). A bare major number
// ("9") selects the main type's default scaling.
type DPT string

// Common DPT identifiers used in building automation.
const (
	// 1-bit types (DPT 1.xxx)
	DPTSwitch DPT = "1.001" // 0=Off, 1=On
	DPTBool   DPT = "1.002" // 0=False, 1=True
	DPTUpDown DPT = "1.008" // 0=Up, 1=Down

	// 4-bit types (DPT 3.xxx)
	DPTDimmingControl DPT = "3.007" // Direction + steps
	DPTBlindControl   DPT = "3.008" // Direction + steps

	// 1-byte types (DPT 5.xxx, 6.xxx)
	DPTPercentage DPT = "5.001" // 0-100%
	DPTAngle      DPT = "5.003" // 0-360°
	DPTPercentU8  DPT = "5.004" // 0-255 raw
	DPTCounter8   DPT = "6.010" // -128..127

	// 2-byte integer types (DPT 7.xxx, 8.xxx)
	DPTPulses16  DPT = "7.001" // 0-65535
	DPTCounter16 DPT = "8.001" // -32768..32767

	// 2-byte float types (DPT 9.xxx)
	DPTTemperature DPT = "9.001" // -273 to 670760 °C
	DPTLux         DPT = "9.004" // 0 to 670760 lux
	DPTHumidity    DPT = "9.007" // 0-100%

	// 3-byte time and date (DPT 10.001, 11.001)
	DPTTimeOfDay DPT = "10.001"
	DPTDate      DPT = "11.001"

	// 4-byte float (DPT 14.xxx)
	DPTFloat32 DPT = "14.000"

	// 14-byte text (DPT 16.xxx)
	DPTText     DPT = "16.000" // ASCII
	DPTText8859 DPT = "16.001" // ISO 8859-1

	// Scene number (DPT 17.001)
	DPTSceneNumber DPT = "17.001" // 0-63 scene number
)

// Main returns the main type number, the part before the dot.
func (d DPT) Main() string {
	main, _, _ := strings.Cut(string(d), ".")
	return main
}

// PayloadLength returns the telegram payload length for the datapoint type.
func (d DPT) PayloadLength() (int, error) {
	switch d.Main() {
	case "1", "3":
		return LengthSmall, nil
	case "5", "6", "17":
		return LengthOneByte, nil
	case "7", "8", "9":
		return LengthTwoByte, nil
	case "10", "11":
		return LengthThreeByte, nil
	case "14":
		return LengthFourByte, nil
	case "16":
		return LengthText, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDPT, d)
	}
}

// IsValid reports whether the datapoint type has a payload mapping.
func (d DPT) IsValid() bool {
	_, err := d.PayloadLength()
	return err == nil
}

// DimmingValue is the decoded form of a DPT 3 control step.
type DimmingValue struct {
	Increase bool  `json:"increase"`
	Steps    uint8 `json:"steps"`
}

// EncodeValue stores value into t using the payload encoding of dpt.
//
// Accepted value types follow what JSON decoding produces: bool, float64
// (and the other Go numeric types), string, and map[string]any for the
// structured types. TimeOfDay, CalendarDate and DimmingValue are accepted
// directly.
//
// Parameters:
//   - t: Telegram whose payload is overwritten (length is set by the encoding)
//   - dpt: Datapoint type selecting the encoding
//   - value: Value to encode
//
// Returns:
//   - error: ErrUnknownDPT, or ErrValueOutOfRange if value does not fit
func EncodeValue(t *Telegram, dpt DPT, value any) error {
	switch dpt.Main() {
	case "1":
		b, err := toBool(value)
		if err != nil {
			return err
		}
		t.SetBool(b)

	case "3":
		dim, err := toDimming(value)
		if err != nil {
			return err
		}
		t.SetFourBitDim(dim.Increase, dim.Steps)

	case "5":
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		raw, err := scaleDPT5(dpt, f)
		if err != nil {
			return err
		}
		t.SetOneByteInt(raw)

	case "6":
		n, err := toIntInRange(value, math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		t.SetOneByteInt(uint8(int8(n))) //nolint:gosec // range checked above

	case "17":
		n, err := toIntInRange(value, 0, dpt17MaxScene)
		if err != nil {
			return err
		}
		t.SetOneByteInt(uint8(n)) //nolint:gosec // range checked above

	case "7":
		n, err := toIntInRange(value, 0, math.MaxUint16)
		if err != nil {
			return err
		}
		t.SetTwoByteInt(uint16(n)) //nolint:gosec // range checked above

	case "8":
		n, err := toIntInRange(value, math.MinInt16, math.MaxInt16)
		if err != nil {
			return err
		}
		t.SetTwoByteInt(uint16(int16(n))) //nolint:gosec // range checked above

	case "9":
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		return t.SetTwoByteFloat(f)

	case "10":
		tod, err := toTimeOfDay(value)
		if err != nil {
			return err
		}
		t.SetTime(tod)

	case "11":
		date, err := toDate(value)
		if err != nil {
			return err
		}
		t.SetDate(date)

	case "14":
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		if math.Abs(f) > math.MaxFloat32 {
			return fmt.Errorf("%w: %v exceeds 4-byte float range", ErrValueOutOfRange, f)
		}
		t.SetFourByteFloat(float32(f))

	case "16":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: DPT %s expects a string, got %T", ErrValueOutOfRange, dpt, value)
		}
		t.SetText(s)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownDPT, dpt)
	}
	return nil
}

// DecodeValue reads the payload of t using the encoding of dpt.
//
// Returns:
//   - any: bool, float64, int, string, DimmingValue, TimeOfDay or CalendarDate
//   - error: ErrUnknownDPT or ErrWrongPayloadLength
func DecodeValue(t *Telegram, dpt DPT) (any, error) {
	switch dpt.Main() {
	case "1":
		return t.Bool()

	case "3":
		inc, err := t.FourBitDirection()
		if err != nil {
			return nil, err
		}
		steps, err := t.FourBitSteps()
		if err != nil {
			return nil, err
		}
		return DimmingValue{Increase: inc, Steps: steps}, nil

	case "5":
		raw, err := t.OneByteInt()
		if err != nil {
			return nil, err
		}
		return unscaleDPT5(dpt, raw), nil

	case "6":
		raw, err := t.OneByteInt()
		if err != nil {
			return nil, err
		}
		return int(int8(raw)), nil //nolint:gosec // two's complement reinterpretation

	case "17":
		raw, err := t.OneByteInt()
		if err != nil {
			return nil, err
		}
		return int(raw & dpt17MaxScene), nil

	case "7":
		raw, err := t.TwoByteInt()
		if err != nil {
			return nil, err
		}
		return int(raw), nil

	case "8":
		raw, err := t.TwoByteInt()
		if err != nil {
			return nil, err
		}
		return int(int16(raw)), nil //nolint:gosec // two's complement reinterpretation

	case "9":
		return t.TwoByteFloat()

	case "10":
		return t.Time()

	case "11":
		return t.Date()

	case "14":
		f, err := t.FourByteFloat()
		if err != nil {
			return nil, err
		}
		return float64(f), nil

	case "16":
		return t.Text()

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDPT, dpt)
	}
}

// scaleDPT5 converts an engineering value to the raw DPT5 byte.
func scaleDPT5(dpt DPT, f float64) (uint8, error) {
	if math.IsNaN(f) {
		return 0, fmt.Errorf("%w: DPT %s got NaN", ErrValueOutOfRange, dpt)
	}
	switch dpt {
	case DPTPercentage:
		f = math.Max(0, math.Min(dpt5PercentMax, f))
		return uint8(math.Round(f * dpt5MaxValue / dpt5PercentMax)), nil
	case DPTAngle:
		f = math.Max(0, math.Min(dpt5AngleMax, f))
		return uint8(math.Round(f * dpt5MaxValue / dpt5AngleMax)), nil
	default:
		if f < 0 || f > dpt5MaxValue {
			return 0, fmt.Errorf("%w: DPT %s must be 0-%d, got %v", ErrValueOutOfRange, dpt, dpt5MaxValue, f)
		}
		return uint8(math.Round(f)), nil
	}
}

// unscaleDPT5 converts a raw DPT5 byte to its engineering value.
func unscaleDPT5(dpt DPT, raw uint8) float64 {
	switch dpt {
	case DPTPercentage:
		return float64(raw) * dpt5PercentMax / dpt5MaxValue
	case DPTAngle:
		return float64(raw) * dpt5AngleMax / dpt5MaxValue
	default:
		return float64(raw)
	}
}

// toBool accepts bool, numbers (non-zero is true) and "on"/"off" style strings.
func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "on", "true", "up":
			return true, nil
		case "0", "off", "false", "down":
			return false, nil
		}
		return false, fmt.Errorf("%w: cannot interpret %q as bool", ErrValueOutOfRange, b)
	default:
		f, err := toFloat(v)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}

// toFloat converts JSON and Go numeric values to a finite float64.
// NaN and the infinities never encode; strconv accepts them as text.
func toFloat(v any) (float64, error) {
	f, err := numericValue(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not a finite number", ErrValueOutOfRange, f)
	}
	return f, nil
}

func numericValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrValueOutOfRange, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrValueOutOfRange, err)
		}
		return f, nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unsupported numeric type %T", ErrValueOutOfRange, v)
	}
}

// toIntInRange converts v to an integer and checks [lo, hi].
func toIntInRange(v any, lo, hi int) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrValueOutOfRange, f)
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, fmt.Errorf("%w: %v not in %d..%d", ErrValueOutOfRange, f, lo, hi)
	}
	return int(f), nil
}

// toDimming accepts DimmingValue or {"increase": bool, "steps": n}.
func toDimming(v any) (DimmingValue, error) {
	switch d := v.(type) {
	case DimmingValue:
		return d, nil
	case map[string]any:
		inc, err := toBool(d["increase"])
		if err != nil {
			return DimmingValue{}, err
		}
		steps, err := toIntInRange(d["steps"], 0, int(dimStepsMask))
		if err != nil {
			return DimmingValue{}, err
		}
		return DimmingValue{Increase: inc, Steps: uint8(steps)}, nil //nolint:gosec // range checked
	default:
		return DimmingValue{}, fmt.Errorf("%w: dimming expects an object, got %T", ErrValueOutOfRange, v)
	}
}

// toTimeOfDay accepts TimeOfDay or an object with weekday/hour/minute/second.
func toTimeOfDay(v any) (TimeOfDay, error) {
	switch tv := v.(type) {
	case TimeOfDay:
		return tv, nil
	case map[string]any:
		fields, err := intFields(tv, []string{"weekday", "hour", "minute", "second"}, []int{7, 23, 59, 59})
		if err != nil {
			return TimeOfDay{}, err
		}
		return TimeOfDay{Weekday: fields[0], Hour: fields[1], Minute: fields[2], Second: fields[3]}, nil
	default:
		return TimeOfDay{}, fmt.Errorf("%w: time expects an object, got %T", ErrValueOutOfRange, v)
	}
}

// toDate accepts CalendarDate or an object with day/month/year.
func toDate(v any) (CalendarDate, error) {
	switch dv := v.(type) {
	case CalendarDate:
		return dv, nil
	case map[string]any:
		fields, err := intFields(dv, []string{"day", "month", "year"}, []int{31, 12, 99})
		if err != nil {
			return CalendarDate{}, err
		}
		return CalendarDate{Day: fields[0], Month: fields[1], Year: fields[2]}, nil
	default:
		return CalendarDate{}, fmt.Errorf("%w: date expects an object, got %T", ErrValueOutOfRange, v)
	}
}

// intFields extracts bounded integer fields from a JSON object. Missing
// fields default to zero.
func intFields(m map[string]any, keys []string, maxima []int) ([]uint8, error) {
	out := make([]uint8, len(keys))
	for i, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		n, err := toIntInRange(raw, 0, maxima[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[i] = uint8(n) //nolint:gosec // range checked
	}
	return out, nil
}
