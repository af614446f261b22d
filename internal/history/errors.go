package history

import "errors"

var (
	// ErrSerialRequired is returned when a query or write has no device serial.
	ErrSerialRequired = errors.New("history: serial is required")

	// ErrInvalidRetention is returned when Prune is given a non-positive age.
	ErrInvalidRetention = errors.New("history: retention must be positive")

	// ErrNoAlarm is returned when no alarm event of a category is stored.
	ErrNoAlarm = errors.New("history: no alarm event")
)
