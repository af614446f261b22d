package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ezviz/migrations"
)

// setupTestRepo opens an in-memory database with the history tables.
func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

// fixedNow makes the repository clock return successive times from start.
func fixedNow(repo *SQLiteRepository, start time.Time, step time.Duration) {
	next := start
	repo.now = func() time.Time {
		t := next
		next = next.Add(step)
		return t
	}
}

func TestRecordSnapshot(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(repo, start, time.Second)

	values := map[string]any{"name": "Front Door", "signal": float64(72), "ssid": nil}
	if err := repo.RecordSnapshot(ctx, "Q123", values, start.Add(-time.Second)); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	entries, err := repo.Snapshots(ctx, "Q123", 10)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	entry := entries[0]
	if entry.Serial != "Q123" {
		t.Errorf("Serial = %q", entry.Serial)
	}
	if entry.Snapshot["name"] != "Front Door" || entry.Snapshot["signal"] != float64(72) {
		t.Errorf("Snapshot = %v", entry.Snapshot)
	}
	if v, ok := entry.Snapshot["ssid"]; !ok || v != nil {
		t.Errorf("ssid = %v (present %v), want explicit nil", v, ok)
	}
	if !entry.CreatedAt.Equal(start) {
		t.Errorf("CreatedAt = %v, want %v", entry.CreatedAt, start)
	}
	if !entry.FetchedAt.Equal(start.Add(-time.Second)) {
		t.Errorf("FetchedAt = %v", entry.FetchedAt)
	}
}

func TestSnapshots_NewestFirstAndLimit(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(repo, start, time.Millisecond)

	for i := range 5 {
		if err := repo.RecordSnapshot(ctx, "Q123", map[string]any{"n": float64(i)}, start); err != nil {
			t.Fatalf("RecordSnapshot(%d) error = %v", i, err)
		}
	}
	if err := repo.RecordSnapshot(ctx, "OTHER", map[string]any{"n": float64(99)}, start); err != nil {
		t.Fatalf("RecordSnapshot(OTHER) error = %v", err)
	}

	entries, err := repo.Snapshots(ctx, "Q123", 3)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i, want := range []float64{4, 3, 2} {
		if entries[i].Snapshot["n"] != want {
			t.Errorf("entries[%d].n = %v, want %v", i, entries[i].Snapshot["n"], want)
		}
	}

	all, err := repo.Snapshots(ctx, "Q123", 0)
	if err != nil {
		t.Fatalf("Snapshots(default) error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("default limit returned %d entries, want 5", len(all))
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-1, defaultLimit},
		{10, 10},
		{maxLimit, maxLimit},
		{maxLimit + 1, maxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestRecordAlarm(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixedNow(repo, start, time.Second)

	first := AlarmEvent{
		Serial:     "Q123",
		Category:   "doorbell_ringing",
		AlarmName:  "Your doorbell is ringing",
		AlarmTime:  "2026-03-01 11:59:48",
		PictureURL: "https://example.invalid/pic.jpg",
	}
	if err := repo.RecordAlarm(ctx, first); err != nil {
		t.Fatalf("RecordAlarm() error = %v", err)
	}
	second := AlarmEvent{
		Serial:      "Q123",
		Category:    "gate_open",
		AlarmName:   "Monitor open the gate",
		AlarmTime:   "2026-03-01 12:00:30",
		TriggeredAt: start.Add(time.Minute),
	}
	if err := repo.RecordAlarm(ctx, second); err != nil {
		t.Fatalf("RecordAlarm() error = %v", err)
	}

	events, err := repo.Alarms(ctx, "Q123", 10)
	if err != nil {
		t.Fatalf("Alarms() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Category != "gate_open" || events[1].Category != "doorbell_ringing" {
		t.Errorf("order = %s, %s", events[0].Category, events[1].Category)
	}
	if !events[1].TriggeredAt.Equal(start) {
		t.Errorf("zero TriggeredAt should default to now, got %v", events[1].TriggeredAt)
	}
	if events[1].PictureURL != first.PictureURL || events[1].AlarmTime != first.AlarmTime {
		t.Errorf("event = %+v", events[1])
	}
}

func TestLatestAlarm(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := repo.LatestAlarm(ctx, "Q123", "doorbell_ringing"); !errors.Is(err, ErrNoAlarm) {
		t.Fatalf("LatestAlarm() on empty table error = %v, want ErrNoAlarm", err)
	}

	for i, alarmTime := range []string{"2026-03-01 11:00:00", "2026-03-01 11:59:48"} {
		ev := AlarmEvent{
			Serial:      "Q123",
			Category:    "doorbell_ringing",
			AlarmTime:   alarmTime,
			TriggeredAt: start.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.RecordAlarm(ctx, ev); err != nil {
			t.Fatalf("RecordAlarm() error = %v", err)
		}
	}
	other := AlarmEvent{Serial: "Q123", Category: "gate_open", AlarmTime: "2026-03-01 12:30:00", TriggeredAt: start.Add(time.Hour)}
	if err := repo.RecordAlarm(ctx, other); err != nil {
		t.Fatalf("RecordAlarm() error = %v", err)
	}

	latest, err := repo.LatestAlarm(ctx, "Q123", "doorbell_ringing")
	if err != nil {
		t.Fatalf("LatestAlarm() error = %v", err)
	}
	if latest.AlarmTime != "2026-03-01 11:59:48" {
		t.Errorf("AlarmTime = %q, want the newest doorbell alarm", latest.AlarmTime)
	}

	if _, err := repo.LatestAlarm(ctx, "", "doorbell_ringing"); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("LatestAlarm() without serial error = %v", err)
	}
}

func TestValidation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.RecordSnapshot(ctx, "", nil, time.Now()); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("RecordSnapshot(empty serial) error = %v", err)
	}
	if _, err := repo.Snapshots(ctx, "", 1); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("Snapshots(empty serial) error = %v", err)
	}
	if err := repo.RecordAlarm(ctx, AlarmEvent{Category: "x"}); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("RecordAlarm(empty serial) error = %v", err)
	}
	if err := repo.RecordAlarm(ctx, AlarmEvent{Serial: "Q123"}); err == nil {
		t.Error("RecordAlarm(empty category) should fail")
	}
	if _, err := repo.Alarms(ctx, "", 1); !errors.Is(err, ErrSerialRequired) {
		t.Errorf("Alarms(empty serial) error = %v", err)
	}
	if _, err := repo.Prune(ctx, 0); !errors.Is(err, ErrInvalidRetention) {
		t.Errorf("Prune(0) error = %v", err)
	}
}

func TestPrune(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return old }
	if err := repo.RecordSnapshot(ctx, "Q123", map[string]any{"n": 1}, old); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordAlarm(ctx, AlarmEvent{Serial: "Q123", Category: "gate_open"}); err != nil {
		t.Fatal(err)
	}

	repo.now = func() time.Time { return recent }
	if err := repo.RecordSnapshot(ctx, "Q123", map[string]any{"n": 2}, recent); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordAlarm(ctx, AlarmEvent{Serial: "Q123", Category: "doorbell_ringing"}); err != nil {
		t.Fatal(err)
	}

	deleted, err := repo.Prune(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	entries, _ := repo.Snapshots(ctx, "Q123", 10)
	if len(entries) != 1 || entries[0].Snapshot["n"] != float64(2) {
		t.Errorf("remaining snapshots = %+v", entries)
	}
	events, _ := repo.Alarms(ctx, "Q123", 10)
	if len(events) != 1 || events[0].Category != "doorbell_ringing" {
		t.Errorf("remaining events = %+v", events)
	}
}

func TestParseTimestamp(t *testing.T) {
	if _, err := parseTimestamp("created_at", ""); err == nil {
		t.Error("empty timestamp should fail")
	}
	if _, err := parseTimestamp("created_at", "yesterday"); err == nil {
		t.Error("garbage timestamp should fail")
	}
	got, err := parseTimestamp("created_at", "2026-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("RFC 3339 fallback error = %v", err)
	}
	if !got.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("parsed = %v", got)
	}
}
