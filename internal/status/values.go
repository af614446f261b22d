package status

import (
	"strings"
	"time"
)

// AlarmTimeLayout is the device's wall-clock format for last_alarm_time.
const AlarmTimeLayout = "2006-01-02 15:04:05"

// ToBool interprets a loosely typed device value as a boolean.
//
// Booleans pass through, nil is false, numbers are true when non-zero and
// strings are true for "1", "true", "on", "yes" or "y" (case-insensitive,
// surrounding space ignored). Anything else is false.
func ToBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "on", "yes", "y":
			return true
		}
	}
	return false
}

// OnlineState renders the device status field: "online" when the device
// reports 1, "1", true or "online", otherwise "offline".
func OnlineState(v any) string {
	if matchesOne(v, "online") {
		return "online"
	}
	return "offline"
}

// MotionState renders the motion field: "detected" for 1, "1", true or
// "true", otherwise "none".
func MotionState(v any) string {
	if matchesOne(v, "true") {
		return "detected"
	}
	return "none"
}

// UpgradeState renders upgrade_available: "yes" for 1, "1", true or
// "true", otherwise "no".
func UpgradeState(v any) string {
	if matchesOne(v, "true") {
		return "yes"
	}
	return "no"
}

// matchesOne reports whether v is the number 1, true, "1" or word.
// Unlike ToBool, other non-zero numbers and other truthy words do not match.
func matchesOne(v any, word string) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x == 1
	case int:
		return x == 1
	case int64:
		return x == 1
	case string:
		return x == "1" || x == word
	}
	return false
}

// Number returns v as a float64 when it is numeric, and nil otherwise.
// Numeric strings are not accepted; the device reports numbers as numbers.
func Number(v any) any {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return nil
}

// ParseAlarmTime parses last_alarm_time ("2006-01-02 15:04:05") in loc.
// It returns nil for missing or unparsable values.
func ParseAlarmTime(v any, loc *time.Location) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(AlarmTimeLayout, s, loc)
	if err != nil {
		return nil
	}
	return &t
}
