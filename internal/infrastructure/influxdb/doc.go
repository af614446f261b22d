// Package influxdb writes bridge telemetry to InfluxDB v2.
//
// Numeric and boolean observations (signal strength, motion, alarm pulses)
// are stored under the ezviz_observation measurement, alongside poll
// outcomes, alarm triggers and unlock commands. InfluxDB is optional: the
// bridge runs without it when influxdb.enabled is false.
//
// Writes are batched and non-blocking. Asynchronous errors are delivered to
// the callback set with SetOnError.
package influxdb
