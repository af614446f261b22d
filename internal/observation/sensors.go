package observation

import (
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// Device classes and units used by the sensor tables.
const (
	DeviceClassTimestamp = "timestamp"
	DeviceClassDuration  = "duration"
	DeviceClassMotion    = "motion"

	UnitPercent = "%"
	UnitSeconds = "s"
)

// SensorSpec describes one sensor derived from a snapshot field.
type SensorSpec struct {
	Key         string
	Field       status.Field
	Name        string
	DeviceClass string
	Unit        string
	Icon        string

	// Diagnostic sensors are disabled by default.
	Diagnostic bool

	// Transform converts the raw field value; nil passes it through.
	Transform func(v any, loc *time.Location) any
}

// Sensors is the sensor table of the HP7.
var Sensors = []SensorSpec{
	{Key: "name", Field: status.FieldName, Name: "Name", Icon: "mdi:label"},
	{Key: "version", Field: status.FieldVersion, Name: "Firmware Version", Icon: "mdi:update"},
	{Key: "status", Field: status.FieldStatus, Name: "Status", Icon: "mdi:power", Transform: onlineState},
	{Key: "signal", Field: status.FieldSignal, Name: "Wi-Fi Signal", Unit: UnitPercent, Icon: "mdi:wifi", Diagnostic: true, Transform: number},
	{Key: "ssid", Field: status.FieldSSID, Name: "Wi-Fi SSID", Icon: "mdi:wifi", Diagnostic: true},
	{Key: "local_ip", Field: status.FieldLocalIP, Name: "Local IP", Icon: "mdi:ip", Diagnostic: true},
	{Key: "wan_ip", Field: status.FieldWANIP, Name: "WAN IP", Icon: "mdi:wan", Diagnostic: true},
	{Key: "motion", Field: status.FieldMotion, Name: "Motion", Icon: "mdi:run", Transform: motionState},
	{Key: "last_alarm_time", Field: status.FieldLastAlarmTime, Name: "Last Alarm", DeviceClass: DeviceClassTimestamp, Icon: "mdi:clock-alert", Transform: alarmTimestamp},
	{Key: "alarm_name", Field: status.FieldAlarmName, Name: "Last Alarm Type", Icon: "mdi:alert"},
	{Key: "seconds_last_trigger", Field: status.FieldSecondsLastTrigger, Name: "Seconds Since Last Trigger", DeviceClass: DeviceClassDuration, Unit: UnitSeconds, Icon: "mdi:timer", Diagnostic: true},
	{Key: "upgrade_available", Field: status.FieldUpgradeAvailable, Name: "Upgrade Available", Icon: "mdi:update", Diagnostic: true, Transform: upgradeState},
}

func onlineState(v any, _ *time.Location) any  { return status.OnlineState(v) }
func motionState(v any, _ *time.Location) any  { return status.MotionState(v) }
func upgradeState(v any, _ *time.Location) any { return status.UpgradeState(v) }
func number(v any, _ *time.Location) any       { return status.Number(v) }

// alarmTimestamp renders last_alarm_time as RFC 3339 in UTC, or nil.
func alarmTimestamp(v any, loc *time.Location) any {
	t := status.ParseAlarmTime(v, loc)
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// Value computes the sensor value from snap.
func (s SensorSpec) Value(snap status.Snapshot, loc *time.Location) any {
	v := snap.Get(s.Field)
	if s.Transform == nil {
		return v
	}
	return s.Transform(v, loc)
}

// Observation renders the sensor for snap.
func (s SensorSpec) Observation(snap status.Snapshot, loc *time.Location, available bool, at time.Time) Observation {
	return Observation{
		Key:              s.Key,
		Kind:             KindSensor,
		Name:             s.Name,
		Value:            s.Value(snap, loc),
		Available:        available,
		DeviceClass:      s.DeviceClass,
		Unit:             s.Unit,
		Icon:             s.Icon,
		Diagnostic:       s.Diagnostic,
		EnabledByDefault: !s.Diagnostic,
		UpdatedAt:        at,
	}
}

// MotionSensor is the key of the motion binary sensor.
const MotionSensor = "motion_trigger"

// motionObservation renders the motion binary sensor from the normalised
// motion field.
func motionObservation(snap status.Snapshot, available bool, at time.Time) Observation {
	return Observation{
		Key:              MotionSensor,
		Kind:             KindBinarySensor,
		Name:             "Motion Trigger",
		Value:            status.ToBool(snap.Get(status.FieldMotion)),
		Available:        available,
		DeviceClass:      DeviceClassMotion,
		EnabledByDefault: true,
		UpdatedAt:        at,
	}
}

// pulseObservation renders an alarm pulse as a binary sensor.
func pulseObservation(p *AlarmPulse, available bool, at time.Time) Observation {
	cat := p.Category()
	return Observation{
		Key:              cat.Key,
		Kind:             KindBinarySensor,
		Name:             cat.Name,
		Value:            p.IsOn(),
		Available:        available,
		Icon:             cat.Icon,
		EnabledByDefault: true,
		UpdatedAt:        at,
	}
}
