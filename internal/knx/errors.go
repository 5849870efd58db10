package knx

import "errors"

// Domain errors for the telegram codec.
var (
	// ErrWrongPayloadLength is returned by a typed payload getter when the
	// telegram's stored payload length does not match that encoding.
	ErrWrongPayloadLength = errors.New("knx: wrong payload length")

	// ErrInvalidPayloadLength is returned when a payload length outside
	// 1-16 is requested.
	ErrInvalidPayloadLength = errors.New("knx: invalid payload length")

	// ErrChecksumMismatch is returned when a telegram's checksum byte does
	// not match the XOR fold of the preceding bytes.
	ErrChecksumMismatch = errors.New("knx: checksum mismatch")

	// ErrInvalidGroupAddress is returned when a group address string
	// cannot be parsed or is out of range.
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")

	// ErrInvalidIndividualAddress is returned when an individual address
	// string cannot be parsed or is out of range.
	ErrInvalidIndividualAddress = errors.New("knx: invalid individual address")

	// ErrValueOutOfRange is returned when a value cannot be represented by
	// the requested payload encoding.
	ErrValueOutOfRange = errors.New("knx: value out of range")

	// ErrUnknownDPT is returned when a datapoint type identifier has no
	// payload mapping.
	ErrUnknownDPT = errors.New("knx: unknown datapoint type")

	// ErrIndexOutOfRange is returned when a raw buffer index is outside
	// the telegram buffer.
	ErrIndexOutOfRange = errors.New("knx: buffer index out of range")
)
