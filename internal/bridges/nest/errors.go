package nest

import "errors"

var (
	// ErrMissingDependency is returned by NewBridge when the MQTT client or
	// engine is nil.
	ErrMissingDependency = errors.New("nest bridge: mqtt client and engine are required")

	// ErrInvalidCommand is returned for a command that cannot be decoded
	// or routed.
	ErrInvalidCommand = errors.New("nest bridge: invalid command")
)
