// Package telemetry forwards observation changes and poll, alarm and unlock
// outcomes to a time-series writer.
package telemetry

import (
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// Writer is the time-series sink. *influxdb.Client satisfies it.
type Writer interface {
	WriteObservation(serial, key string, value any, at time.Time) bool
	WritePoll(serial string, ok bool, duration time.Duration, at time.Time)
	WriteAlarm(serial, category, alarmName string, at time.Time)
	WriteUnlock(serial, action string, success bool, at time.Time)
}

// SnapshotSource returns the latest device snapshot.
type SnapshotSource interface {
	Snapshot() (status.Snapshot, bool)
}

// Telemetry writes one device's activity to a Writer.
//
// It implements observation.Listener and the coordinator, observation and
// command recorder interfaces, so one value can be handed to all of them.
type Telemetry struct {
	w         Writer
	serial    string
	snapshots SnapshotSource
	now       func() time.Time
}

// New creates telemetry for one device. snapshots may be nil, in which
// case alarm points carry no alarm name.
func New(w Writer, serial string, snapshots SnapshotSource) *Telemetry {
	return &Telemetry{w: w, serial: serial, snapshots: snapshots, now: time.Now}
}

// ObservationChanged writes the value of an available observation.
// Values the writer cannot represent (strings, nil) are skipped by it.
func (t *Telemetry) ObservationChanged(serial string, obs observation.Observation) {
	if !obs.Available {
		return
	}
	at := obs.UpdatedAt
	if at.IsZero() {
		at = t.now()
	}
	t.w.WriteObservation(serial, obs.Key, obs.Value, at)
}

// ObservePoll writes the outcome of one refresh.
func (t *Telemetry) ObservePoll(ok bool, duration time.Duration) {
	t.w.WritePoll(t.serial, ok, duration, t.now())
}

// AlarmTriggered writes an alarm trigger with the current alarm name.
func (t *Telemetry) AlarmTriggered(category string) {
	var name string
	if t.snapshots != nil {
		if snap, ok := t.snapshots.Snapshot(); ok {
			name, _ = snap.String(status.FieldAlarmName)
		}
	}
	t.w.WriteAlarm(t.serial, category, name, t.now())
}

// UnlockCompleted writes the outcome of an unlock command.
func (t *Telemetry) UnlockCompleted(action string, ok bool) {
	t.w.WriteUnlock(t.serial, action, ok, t.now())
}
