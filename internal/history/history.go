package history

import (
	"context"
	"time"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// SnapshotEntry is one recorded status snapshot.
type SnapshotEntry struct {
	ID int64 `json:"id"`

	// Serial is the device serial.
	Serial string `json:"serial"`

	// Snapshot holds every normalised field keyed by name.
	Snapshot map[string]any `json:"snapshot"`

	// FetchedAt is when the snapshot was fetched from the cloud.
	FetchedAt time.Time `json:"fetched_at"`

	// CreatedAt is when the row was written (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// AlarmEvent is one alarm pulse trigger.
type AlarmEvent struct {
	ID          int64     `json:"id"`
	Serial      string    `json:"serial"`
	Category    string    `json:"category"`
	AlarmName   string    `json:"alarm_name"`
	AlarmTime   string    `json:"alarm_time"`
	PictureURL  string    `json:"picture_url,omitempty"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Repository stores and retrieves device history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// RecordSnapshot stores a snapshot of normalised fields.
	RecordSnapshot(ctx context.Context, serial string, values map[string]any, fetchedAt time.Time) error

	// Snapshots returns recent snapshots, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - serial: Device serial
	//   - limit: Maximum entries to return (default 50, max 200)
	//
	// Returns:
	//   - []SnapshotEntry: Entries ordered newest first (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	Snapshots(ctx context.Context, serial string, limit int) ([]SnapshotEntry, error)

	// RecordAlarm stores an alarm event.
	RecordAlarm(ctx context.Context, event AlarmEvent) error

	// Alarms returns recent alarm events, newest first, with the same
	// limit rules as Snapshots.
	Alarms(ctx context.Context, serial string, limit int) ([]AlarmEvent, error)

	// LatestAlarm returns the newest alarm event of one category, or
	// ErrNoAlarm when none is stored.
	LatestAlarm(ctx context.Context, serial, category string) (AlarmEvent, error)

	// Prune deletes snapshots and alarm events older than olderThan.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// clampLimit applies the default and maximum row limits.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
