package status

import (
	"testing"
	"time"
)

func TestToBool(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{false, false},
		{float64(1), true},
		{float64(0), false},
		{float64(-2.5), true},
		{3, true},
		{0, false},
		{int64(7), true},
		{"1", true},
		{"TRUE", true},
		{" on ", true},
		{"yes", true},
		{"Y", true},
		{"0", false},
		{"off", false},
		{"", false},
		{[]any{1}, false},
	}

	for _, tt := range tests {
		if got := ToBool(tt.in); got != tt.want {
			t.Errorf("ToBool(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOnlineState(t *testing.T) {
	online := []any{float64(1), 1, "1", true, "online"}
	offline := []any{nil, float64(0), 2, "0", "offline", false, "ONLINE"}

	for _, v := range online {
		if got := OnlineState(v); got != "online" {
			t.Errorf("OnlineState(%#v) = %q, want online", v, got)
		}
	}
	for _, v := range offline {
		if got := OnlineState(v); got != "offline" {
			t.Errorf("OnlineState(%#v) = %q, want offline", v, got)
		}
	}
}

func TestMotionState(t *testing.T) {
	detected := []any{float64(1), 1, "1", true, "true"}
	none := []any{nil, float64(0), "0", false, "yes"}

	for _, v := range detected {
		if got := MotionState(v); got != "detected" {
			t.Errorf("MotionState(%#v) = %q, want detected", v, got)
		}
	}
	for _, v := range none {
		if got := MotionState(v); got != "none" {
			t.Errorf("MotionState(%#v) = %q, want none", v, got)
		}
	}
}

func TestUpgradeState(t *testing.T) {
	if UpgradeState(true) != "yes" || UpgradeState(float64(1)) != "yes" {
		t.Error("truthy upgrade flag should be yes")
	}
	if UpgradeState(nil) != "no" || UpgradeState(false) != "no" || UpgradeState("yes") != "no" {
		t.Error("falsy upgrade flag should be no")
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{float64(72), float64(72)},
		{55, float64(55)},
		{"61", nil},
		{"strong", nil},
		{nil, nil},
		{true, nil},
	}

	for _, tt := range tests {
		if got := Number(tt.in); got != tt.want {
			t.Errorf("Number(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestParseAlarmTime(t *testing.T) {
	loc := time.FixedZone("CET", 3600)

	got := ParseAlarmTime("2026-03-01 11:59:48", loc)
	if got == nil {
		t.Fatal("ParseAlarmTime() = nil")
	}
	want := time.Date(2026, 3, 1, 10, 59, 48, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseAlarmTime() = %v, want %v", got, want)
	}

	for _, bad := range []any{nil, "", "yesterday", float64(1700000000)} {
		if ParseAlarmTime(bad, loc) != nil {
			t.Errorf("ParseAlarmTime(%#v) should be nil", bad)
		}
	}

	if ParseAlarmTime("2026-03-01 11:59:48", nil) == nil {
		t.Error("nil location should fall back to local time")
	}
}
