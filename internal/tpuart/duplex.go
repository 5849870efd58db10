package tpuart

import (
	"fmt"
	"time"
)

// Parity is the serial parity mode.
type Parity uint8

// Parity modes.
const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

// String returns the parity name as used in configuration files.
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return fmt.Sprintf("parity(%d)", uint8(p))
	}
}

// ParseParity parses "none", "even" or "odd".
func ParseParity(s string) (Parity, error) {
	switch s {
	case "none", "n", "N":
		return ParityNone, nil
	case "even", "e", "E":
		return ParityEven, nil
	case "odd", "o", "O":
		return ParityOdd, nil
	default:
		return ParityNone, fmt.Errorf("tpuart: unknown parity %q", s)
	}
}

// LineSettings is the serial framing the transceiver requires.
type LineSettings struct {
	BaudRate int
	DataBits int
	Parity   Parity
	StopBits int
}

// DefaultLineSettings is the TP-UART framing: 19200 baud, 8 data bits,
// even parity, 1 stop bit.
var DefaultLineSettings = LineSettings{
	BaudRate: 19200,
	DataBits: 8,
	Parity:   ParityEven,
	StopBits: 1,
}

// String returns the settings in the usual "19200 8E1" form.
func (s LineSettings) String() string {
	p := "N"
	switch s.Parity {
	case ParityEven:
		p = "E"
	case ParityOdd:
		p = "O"
	}
	return fmt.Sprintf("%d %d%s%d", s.BaudRate, s.DataBits, p, s.StopBits)
}

// Duplex is the byte-level serial link to the transceiver.
//
// Implementations must make Available non-blocking and bound ReceiveByte by
// timeout, returning ErrReadTimeout when it expires. Configure is called
// before every blocking read; an unchanged configuration must be a no-op.
// Once the link is gone Available must report true and ReceiveByte must
// return ErrPortClosed, which is how Run learns to stop.
type Duplex interface {
	Available() bool
	ReceiveByte(timeout time.Duration) (byte, error)
	Write(p []byte) error
	Configure(settings LineSettings) error
}
