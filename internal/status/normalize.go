package status

import "time"

// Raw keys in the status map returned by the EZVIZ client.
const (
	RawName               = "name"
	RawVersion            = "version"
	RawUpgradeAvailable   = "upgrade_available"
	RawStatus             = "status"
	RawWANIP              = "wan_ip"
	RawPIRStatus          = "PIR_Status"
	RawMotionTrigger      = "Motion_Trigger"
	RawSecondsLastTrigger = "Seconds_Last_Trigger"
	RawLastAlarmTime      = "last_alarm_time"
	RawLastAlarmPic       = "last_alarm_pic"
	RawLastAlarmTypeName  = "last_alarm_type_name"
	RawLocalIP            = "local_ip"
	RawWiFi               = "WIFI"

	rawWiFiSSID    = "ssid"
	rawWiFiSignal  = "signal"
	rawWiFiAddress = "address"
)

// topLevel maps snapshot fields read directly from the raw map.
var topLevel = map[Field]string{
	FieldName:               RawName,
	FieldVersion:            RawVersion,
	FieldUpgradeAvailable:   RawUpgradeAvailable,
	FieldStatus:             RawStatus,
	FieldWANIP:              RawWANIP,
	FieldPIRStatus:          RawPIRStatus,
	FieldMotion:             RawMotionTrigger,
	FieldSecondsLastTrigger: RawSecondsLastTrigger,
	FieldLastAlarmTime:      RawLastAlarmTime,
	FieldLastAlarmPic:       RawLastAlarmPic,
	FieldAlarmName:          RawLastAlarmTypeName,
}

// Normalize maps a raw device status onto the fixed Snapshot field set.
//
// It never fails: any missing key yields nil for its field, and a missing
// or malformed WIFI section only affects ssid, signal and the local_ip
// fallback. Normalize is pure; the same input always gives an equal
// Snapshot.
//
// Parameters:
//   - raw: Status map as returned by the cloud client (may be nil)
//   - fetchedAt: When raw was fetched
//
// Returns:
//   - Snapshot: Normalised snapshot containing every field
func Normalize(raw map[string]any, fetchedAt time.Time) Snapshot {
	values := make(map[Field]any, len(Fields))
	for _, f := range Fields {
		values[f] = nil
	}

	for field, key := range topLevel {
		values[field] = raw[key]
	}

	wifi, _ := raw[RawWiFi].(map[string]any)
	values[FieldSSID] = wifi[rawWiFiSSID]
	values[FieldSignal] = wifi[rawWiFiSignal]

	localIP := raw[RawLocalIP]
	if isBlank(localIP) {
		localIP = wifi[rawWiFiAddress]
	}
	values[FieldLocalIP] = localIP

	return Snapshot{values: values, fetchedAt: fetchedAt}
}

// isBlank reports whether v is nil or an empty string.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
