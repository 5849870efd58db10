package tpuart

import "errors"

// Domain-specific errors for the TP-UART line protocol.
var (
	// ErrReadTimeout is returned when the transceiver does not deliver a
	// byte within the serial timeout.
	ErrReadTimeout = errors.New("tpuart: read timeout")

	// ErrNegativeAck is returned when the transceiver confirms a send with
	// the negative confirmation byte.
	ErrNegativeAck = errors.New("tpuart: transmission not acknowledged")

	// ErrListenTableFull is returned when the listen table already holds
	// the maximum number of group addresses.
	ErrListenTableFull = errors.New("tpuart: listen table full")

	// ErrPortClosed is returned by a closed Duplex.
	ErrPortClosed = errors.New("tpuart: port closed")

	// ErrOpenFailed is returned when the serial device cannot be opened.
	ErrOpenFailed = errors.New("tpuart: open failed")

	// ErrInvalidAddress is returned when the engine is configured without
	// a valid individual address.
	ErrInvalidAddress = errors.New("tpuart: invalid individual address")
)
