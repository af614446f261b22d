package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidMessage is returned when an MQTT payload cannot be parsed.
	ErrInvalidMessage = errors.New("bridge: invalid message")

	// ErrUnknownRequest is returned for a request action the bridge does not serve.
	ErrUnknownRequest = errors.New("bridge: unknown request action")
)
