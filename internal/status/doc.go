// Package status turns the EZVIZ cloud's loosely typed device status into
// a fixed-shape Snapshot.
//
// The raw map mixes top-level keys with a nested WIFI section and uses the
// vendor's own names (PIR_Status, Motion_Trigger, last_alarm_type_name).
// Normalize maps it onto fourteen stable fields and fills anything missing
// with nil, so every consumer can read every field without checks.
//
// The helpers in values.go (ToBool, OnlineState, MotionState, UpgradeState,
// Number, ParseAlarmTime) interpret individual values for presentation.
package status
