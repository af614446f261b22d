package observation

import "errors"

var (
	// ErrNoImage means no alarm picture is available right now.
	ErrNoImage = errors.New("observation: no image available")

	// ErrUnsupported is returned when pressing a button for a capability
	// the device lacks.
	ErrUnsupported = errors.New("observation: capability not supported")
)
