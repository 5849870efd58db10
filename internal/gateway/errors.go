package gateway

import "errors"

// Domain-specific errors for the gateway.
var (
	// ErrMissingEngine is returned by NewBridge without a line engine.
	ErrMissingEngine = errors.New("gateway: engine is required")

	// ErrInvalidAction is returned for a request action other than
	// write, read or answer.
	ErrInvalidAction = errors.New("gateway: invalid action")

	// ErrMissingDPT is returned when a write or answer names no datapoint
	// type and none is configured for the group address.
	ErrMissingDPT = errors.New("gateway: no datapoint type for group address")

	// ErrInvalidCommand is returned when a command payload cannot be parsed.
	ErrInvalidCommand = errors.New("gateway: invalid command payload")

	// ErrNotRunning is returned when a request arrives after Stop.
	ErrNotRunning = errors.New("gateway: bridge is not running")

	// ErrDuplicateDatapoint is returned when two datapoints share a group
	// address.
	ErrDuplicateDatapoint = errors.New("gateway: duplicate datapoint")
)
