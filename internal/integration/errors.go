package integration

import "errors"

var (
	// ErrNotReady is returned by Setup when the device cannot be brought up
	// yet (cloud login or the first status refresh failed). Callers should
	// retry later.
	ErrNotReady = errors.New("integration: device not ready")

	// ErrNotSetUp is returned by operations that need a running device.
	ErrNotSetUp = errors.New("integration: not set up")

	// ErrAlreadySetUp is returned by Setup on a running integration.
	ErrAlreadySetUp = errors.New("integration: already set up")
)
