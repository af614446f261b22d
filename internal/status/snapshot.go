package status

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Field names one entry of a normalised Snapshot.
type Field string

// The fixed field set every Snapshot carries.
const (
	FieldName               Field = "name"
	FieldVersion            Field = "version"
	FieldUpgradeAvailable   Field = "upgrade_available"
	FieldStatus             Field = "status"
	FieldWANIP              Field = "wan_ip"
	FieldPIRStatus          Field = "pir_status"
	FieldMotion             Field = "motion"
	FieldSecondsLastTrigger Field = "seconds_last_trigger"
	FieldLastAlarmTime      Field = "last_alarm_time"
	FieldLastAlarmPic       Field = "last_alarm_pic"
	FieldAlarmName          Field = "alarm_name"
	FieldSSID               Field = "ssid"
	FieldSignal             Field = "signal"
	FieldLocalIP            Field = "local_ip"
)

// Fields lists every Snapshot field in a stable order.
var Fields = []Field{
	FieldName,
	FieldVersion,
	FieldUpgradeAvailable,
	FieldStatus,
	FieldWANIP,
	FieldPIRStatus,
	FieldMotion,
	FieldSecondsLastTrigger,
	FieldLastAlarmTime,
	FieldLastAlarmPic,
	FieldAlarmName,
	FieldSSID,
	FieldSignal,
	FieldLocalIP,
}

// Snapshot is one normalised reading of the device status.
//
// It always contains every field in Fields; a field the device did not
// report holds nil. Snapshots are immutable: accessors return copies and
// a refresh replaces the whole value.
type Snapshot struct {
	values    map[Field]any
	fetchedAt time.Time
}

// Get returns the value of f, or nil if absent.
func (s Snapshot) Get(f Field) any {
	return s.values[f]
}

// String returns the value of f when it is a non-empty string.
func (s Snapshot) String(f Field) (string, bool) {
	v, ok := s.values[f].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Values returns a copy of all fields keyed by name.
func (s Snapshot) Values() map[string]any {
	out := make(map[string]any, len(Fields))
	for _, f := range Fields {
		out[string(f)] = s.values[f]
	}
	return out
}

// FetchedAt returns when the raw status behind this snapshot was fetched.
func (s Snapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

// IsZero reports whether s was never produced by Normalize.
func (s Snapshot) IsZero() bool {
	return s.values == nil
}

// SameValues reports whether s and other hold equal field values,
// ignoring FetchedAt.
func (s Snapshot) SameValues(other Snapshot) bool {
	return maps.EqualFunc(s.values, other.values, func(a, b any) bool {
		return equalValue(a, b)
	})
}

// SameValuesExcept is SameValues with the ignored fields left out of the
// comparison.
func (s Snapshot) SameValuesExcept(other Snapshot, ignored ...Field) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for f, v := range s.values {
		if slices.Contains(ignored, f) {
			continue
		}
		ov, ok := other.values[f]
		if !ok || !equalValue(v, ov) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the fields plus fetched_at.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := s.Values()
	out["fetched_at"] = s.fetchedAt.UTC().Format(time.RFC3339)
	return json.Marshal(out)
}

// equalValue compares two raw values. Nested maps from the vendor payload
// never reach a Snapshot, so scalars are compared directly and anything
// else through its JSON form.
func equalValue(a, b any) bool {
	switch a.(type) {
	case nil, bool, string, float64, int, int64:
		return a == b
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
