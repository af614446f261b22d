// Package session bootstraps the cloud session for one EZVIZ account.
//
// Open reuses a configured or stored session and logs in only when none
// is available. Every new session, including one renewed after expiry,
// is written back to the TokenStore so restarts skip the login.
//
// The session also answers the setup-time questions about the device:
// which unlock actions it supports, what it is called, and which devices
// the account can see.
package session
