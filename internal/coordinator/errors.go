package coordinator

import "errors"

var (
	// ErrNotReady is returned by FirstRefresh when the device cannot be
	// read at startup.
	ErrNotReady = errors.New("coordinator: device not ready")

	// ErrFetchFailed wraps a failed status fetch after startup. The
	// previous snapshot stays in place.
	ErrFetchFailed = errors.New("coordinator: status fetch failed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("coordinator: already started")
)
