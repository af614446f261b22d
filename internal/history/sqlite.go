package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteRepository implements Repository on the snapshot_history and
// alarm_events tables.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository over an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordSnapshot inserts a snapshot row.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - serial: Device serial
//   - values: Normalised snapshot fields
//   - fetchedAt: When the snapshot was fetched
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) RecordSnapshot(ctx context.Context, serial string, values map[string]any, fetchedAt time.Time) error {
	if serial == "" {
		return ErrSerialRequired
	}
	if values == nil {
		values = map[string]any{}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshot_history (serial, snapshot, fetched_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		serial,
		string(data),
		formatTimestamp(fetchedAt),
		formatTimestamp(r.now()),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot history: %w", err)
	}
	return nil
}

// Snapshots returns recent snapshot rows for a device, newest first.
func (r *SQLiteRepository) Snapshots(ctx context.Context, serial string, limit int) ([]SnapshotEntry, error) {
	if serial == "" {
		return nil, ErrSerialRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, serial, snapshot, fetched_at, created_at
		 FROM snapshot_history
		 WHERE serial = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		serial,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot history: %w", err)
	}
	defer rows.Close()

	entries := make([]SnapshotEntry, 0, limit)
	for rows.Next() {
		var entry SnapshotEntry
		var data, fetchedAt, createdAt string

		if err := rows.Scan(&entry.ID, &entry.Serial, &data, &fetchedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot history: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &entry.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshalling snapshot: %w", err)
		}
		if entry.FetchedAt, err = parseTimestamp("fetched_at", fetchedAt); err != nil {
			return nil, err
		}
		if entry.CreatedAt, err = parseTimestamp("created_at", createdAt); err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot history: %w", err)
	}

	return entries, nil
}

// RecordAlarm inserts an alarm event. A zero TriggeredAt is set to now.
func (r *SQLiteRepository) RecordAlarm(ctx context.Context, event AlarmEvent) error {
	if event.Serial == "" {
		return ErrSerialRequired
	}
	if event.Category == "" {
		return fmt.Errorf("history: alarm category is required")
	}
	if event.TriggeredAt.IsZero() {
		event.TriggeredAt = r.now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alarm_events (serial, category, alarm_name, alarm_time, picture_url, triggered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.Serial,
		event.Category,
		event.AlarmName,
		event.AlarmTime,
		event.PictureURL,
		formatTimestamp(event.TriggeredAt),
	)
	if err != nil {
		return fmt.Errorf("inserting alarm event: %w", err)
	}
	return nil
}

// Alarms returns recent alarm events for a device, newest first.
func (r *SQLiteRepository) Alarms(ctx context.Context, serial string, limit int) ([]AlarmEvent, error) {
	if serial == "" {
		return nil, ErrSerialRequired
	}
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, serial, category, alarm_name, alarm_time, picture_url, triggered_at
		 FROM alarm_events
		 WHERE serial = ?
		 ORDER BY triggered_at DESC, id DESC
		 LIMIT ?`,
		serial,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alarm events: %w", err)
	}
	defer rows.Close()

	events := make([]AlarmEvent, 0, limit)
	for rows.Next() {
		var ev AlarmEvent
		var triggeredAt string

		if err := rows.Scan(&ev.ID, &ev.Serial, &ev.Category, &ev.AlarmName, &ev.AlarmTime, &ev.PictureURL, &triggeredAt); err != nil {
			return nil, fmt.Errorf("scanning alarm events: %w", err)
		}
		if ev.TriggeredAt, err = parseTimestamp("triggered_at", triggeredAt); err != nil {
			return nil, err
		}

		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alarm events: %w", err)
	}

	return events, nil
}

// LatestAlarm returns the newest alarm event of category for a device.
func (r *SQLiteRepository) LatestAlarm(ctx context.Context, serial, category string) (AlarmEvent, error) {
	if serial == "" {
		return AlarmEvent{}, ErrSerialRequired
	}

	var ev AlarmEvent
	var triggeredAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, serial, category, alarm_name, alarm_time, picture_url, triggered_at
		 FROM alarm_events
		 WHERE serial = ? AND category = ?
		 ORDER BY triggered_at DESC, id DESC
		 LIMIT 1`,
		serial,
		category,
	).Scan(&ev.ID, &ev.Serial, &ev.Category, &ev.AlarmName, &ev.AlarmTime, &ev.PictureURL, &triggeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AlarmEvent{}, ErrNoAlarm
	}
	if err != nil {
		return AlarmEvent{}, fmt.Errorf("querying latest alarm event: %w", err)
	}
	if ev.TriggeredAt, err = parseTimestamp("triggered_at", triggeredAt); err != nil {
		return AlarmEvent{}, err
	}
	return ev, nil
}

// Prune deletes snapshot rows and alarm events older than olderThan.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Age to retain (rows older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted across both tables
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := formatTimestamp(r.now().Add(-olderThan))

	var total int64
	for _, stmt := range []string{
		"DELETE FROM snapshot_history WHERE created_at < ?",
		"DELETE FROM alarm_events WHERE triggered_at < ?",
	} {
		result, err := r.db.ExecContext(ctx, stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning history: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}

	return total, nil
}

// formatTimestamp renders t in UTC with a fixed width so that stored values
// sort in time order.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// parseTimestamp parses a timestamp stored by this package, accepting
// plain RFC 3339 values written by hand.
func parseTimestamp(column, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%s is empty", column)
	}

	t, err := time.Parse(timestampLayout, value)
	if err == nil {
		return t, nil
	}
	if fallback, fallbackErr := time.Parse(time.RFC3339, value); fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing %s: %w", column, err)
}
