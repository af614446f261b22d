// Package logging provides structured logging for the EZVIZ bridge.
//
// It wraps log/slog so every entry carries the service name and build
// version, with JSON output for production and text for development.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log the EZVIZ password or session tokens. Log the account name or
// serial instead.
package logging
