package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/coordinator"
	"github.com/nerrad567/gray-logic-ezviz/internal/observation"
	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

const defaultWriteTimeout = 5 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// SnapshotSource returns the latest device snapshot.
type SnapshotSource interface {
	Snapshot() (status.Snapshot, bool)
}

// Recorder writes device history as refreshes and alarm pulses happen.
//
// It is a coordinator.Subscriber for snapshots and an observation.Listener
// for alarm events. Write failures are logged and never reach the caller.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Recorder struct {
	repo      Repository
	serial    string
	snapshots SnapshotSource
	logger    Logger
	timeout   time.Duration

	mu   sync.Mutex
	last status.Snapshot
}

// NewRecorder creates a recorder for one device.
//
// Parameters:
//   - repo: Repository to write to
//   - serial: Device serial
//   - snapshots: Source of the snapshot that accompanies alarm events
//   - logger: Optional logger (nil disables logging)
func NewRecorder(repo Repository, serial string, snapshots SnapshotSource, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:      repo,
		serial:    serial,
		snapshots: snapshots,
		logger:    logger,
		timeout:   defaultWriteTimeout,
	}
}

// OnRefresh implements coordinator.Subscriber. Failed refreshes and
// snapshots equal to the last recorded one are skipped. The trigger age is
// derived from the clock on every poll, so it does not count as a change.
func (r *Recorder) OnRefresh(u coordinator.Update) {
	if u.Err != nil || u.Snapshot.IsZero() {
		return
	}

	r.mu.Lock()
	if !r.last.IsZero() && r.last.SameValuesExcept(u.Snapshot, status.FieldSecondsLastTrigger) {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.repo.RecordSnapshot(ctx, r.serial, u.Snapshot.Values(), u.Snapshot.FetchedAt()); err != nil {
		r.logger.Warn("recording snapshot history failed", "serial", r.serial, "error", err)
		return
	}

	r.mu.Lock()
	r.last = u.Snapshot
	r.mu.Unlock()
}

// ObservationChanged implements observation.Listener. An alarm pulse
// switching on is stored as an alarm event, unless the newest stored event
// of the same category already carries its alarm time. Pulses replay the
// last alarm after a restart.
func (r *Recorder) ObservationChanged(serial string, obs observation.Observation) {
	if obs.Kind != observation.KindBinarySensor || obs.Value != true {
		return
	}
	if _, ok := observation.AlarmCategoryByKey(obs.Key); !ok {
		return
	}

	event := AlarmEvent{
		Serial:      serial,
		Category:    obs.Key,
		TriggeredAt: obs.UpdatedAt,
	}
	if r.snapshots != nil {
		if snap, ok := r.snapshots.Snapshot(); ok {
			event.AlarmName, _ = snap.String(status.FieldAlarmName)
			event.AlarmTime, _ = snap.String(status.FieldLastAlarmTime)
			event.PictureURL, _ = snap.String(status.FieldLastAlarmPic)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if r.alreadyRecorded(ctx, event) {
		r.logger.Debug("alarm event already recorded", "serial", serial, "category", obs.Key, "alarm_time", event.AlarmTime)
		return
	}

	if err := r.repo.RecordAlarm(ctx, event); err != nil {
		r.logger.Warn("recording alarm event failed", "serial", serial, "category", obs.Key, "error", err)
		return
	}
	r.logger.Debug("alarm event recorded", "serial", serial, "category", obs.Key)
}

func (r *Recorder) alreadyRecorded(ctx context.Context, event AlarmEvent) bool {
	if event.AlarmTime == "" {
		return false
	}
	latest, err := r.repo.LatestAlarm(ctx, event.Serial, event.Category)
	if err != nil {
		if !errors.Is(err, ErrNoAlarm) {
			r.logger.Warn("reading latest alarm event failed", "serial", event.Serial, "category", event.Category, "error", err)
		}
		return false
	}
	return latest.AlarmTime == event.AlarmTime
}
