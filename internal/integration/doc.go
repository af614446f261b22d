// Package integration wires the cloud session, the polling coordinator,
// the observation set and the command dispatcher for one configured
// device.
//
// An Integration is an explicit context object: everything a configured
// device needs lives on it, and outer surfaces (MQTT, HTTP, history,
// telemetry) reach the device only through it. Setup brings the device up,
// Close tears it down in reverse order, and Reload does both so new
// options take effect without restarting the process.
package integration
