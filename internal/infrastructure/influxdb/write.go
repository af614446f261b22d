package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementObservation = "ezviz_observation"
	MeasurementPoll        = "ezviz_poll"
	MeasurementAlarm       = "ezviz_alarm"
	MeasurementUnlock      = "ezviz_unlock"
)

// WriteObservation records the numeric or boolean value of one observation.
//
// Only numbers and booleans are written; strings such as the device name
// are not telemetry and are skipped.
//
// Parameters:
//   - serial: Device serial (tag)
//   - key: Observation key, e.g. "signal" or "motion" (tag)
//   - value: Observation value
//   - at: Time of the snapshot the value came from
//
// Returns:
//   - bool: true if a point was queued
func (c *Client) WriteObservation(serial, key string, value any, at time.Time) bool {
	var field any
	switch v := value.(type) {
	case float64, bool:
		field = v
	case int:
		field = float64(v)
	case int64:
		field = float64(v)
	default:
		return false
	}

	return c.queue(MeasurementObservation,
		map[string]string{"serial": serial, "key": key},
		map[string]any{"value": field},
		at,
	)
}

// WritePoll records the outcome and duration of one status refresh.
func (c *Client) WritePoll(serial string, ok bool, duration time.Duration, at time.Time) {
	c.queue(MeasurementPoll,
		map[string]string{"serial": serial},
		map[string]any{"ok": ok, "duration_ms": float64(duration.Microseconds()) / 1000},
		at,
	)
}

// WriteAlarm records an alarm pulse trigger.
func (c *Client) WriteAlarm(serial, category, alarmName string, at time.Time) {
	c.queue(MeasurementAlarm,
		map[string]string{"serial": serial, "category": category},
		map[string]any{"alarm_name": alarmName, "count": 1},
		at,
	)
}

// WriteUnlock records the outcome of an unlock command.
func (c *Client) WriteUnlock(serial, action string, success bool, at time.Time) {
	c.queue(MeasurementUnlock,
		map[string]string{"serial": serial, "action": action},
		map[string]any{"success": success, "count": 1},
		at,
	)
}

// queue hands a point to the batching writer unless the client is closed.
func (c *Client) queue(measurement string, tags map[string]string, fields map[string]any, at time.Time) bool {
	if c.closed.Load() {
		return false
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
	return true
}
