package ezviz

import "errors"

// Errors returned by the cloud client. Check with errors.Is.
var (
	// ErrAuthentication is returned when the cloud rejects the credentials
	// or the session. It is not retried.
	ErrAuthentication = errors.New("ezviz: authentication failed")

	// ErrNotLoggedIn is returned when a call needs a session and none exists.
	ErrNotLoggedIn = errors.New("ezviz: not logged in")

	// ErrNotFound is returned when the requested device or image does not exist.
	ErrNotFound = errors.New("ezviz: not found")

	// ErrRequestFailed is returned for transport errors and non-success
	// responses from the cloud.
	ErrRequestFailed = errors.New("ezviz: request failed")
)
