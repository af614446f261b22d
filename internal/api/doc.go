// Package api implements the HTTP REST API and WebSocket server of the EZVIZ bridge.
//
// This package provides:
//   - REST endpoints for the device, its observations and latest snapshot
//   - Unlock commands and manual refresh
//   - The latest alarm picture as image bytes
//   - Snapshot and alarm history from SQLite
//   - WebSocket hub pushing observation changes as they happen
//   - Prometheus and JSON metrics
//
// # Security
//
// Routes that act on the device or expose its pictures require a bearer JWT
// signed with security.jwt.secret. An empty secret disables authentication,
// which is only sensible on a trusted network. WebSocket connections use
// single-use tickets so the JWT never appears in a URL.
//
// # Graceful Degradation
//
// The server runs before the device is set up: reads report "not ready"
// and commands fail with 503 until the first successful refresh.
package api
