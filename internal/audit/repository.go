// Package audit records who unlocked what, from where, and whether the lock
// opened.
//
// Every unlock is recorded whatever its source (HTTP API, MQTT command or
// the CLI), so the trail answers "who opened the gate at 03:12" even when
// the attempt failed.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-ezviz/internal/command"
)

// Sources of an unlock.
const (
	SourceAPI  = "api"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200

	// timestampLayout is fixed width so stored values sort in time order.
	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Entry is one recorded unlock.
type Entry struct {
	ID      string `json:"id"`
	Serial  string `json:"serial"`
	Action  string `json:"action"`
	Success bool   `json:"success"`

	// LockNo is the lock that opened; zero when none did.
	LockNo int `json:"lock_no,omitempty"`

	// Actor is the API token subject or MQTT command source.
	Actor  string `json:"actor,omitempty"`
	Source string `json:"source"`

	// Details carries the per-lock attempts and the request id.
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewEntry builds an entry from an unlock result.
func NewEntry(serial, source, actor string, res command.Result) *Entry {
	details := map[string]any{
		"attempts":    res.Attempts,
		"duration_ms": res.Duration.Milliseconds(),
	}
	return &Entry{
		Serial:  serial,
		Action:  string(res.Action),
		Success: res.Success,
		LockNo:  res.LockNo,
		Actor:   actor,
		Source:  source,
		Details: details,
	}
}

// Filter controls which entries List returns.
type Filter struct {
	Serial string // optional
	Action string // optional: unlock_door or unlock_gate
	Source string // optional: api, mqtt, cli
	Limit  int    // default 50, max 200
	Offset int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores unlock audit entries.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the unlock_audit table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "unl-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO unlock_audit (id, serial, action, success, lock_no, actor, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Serial, entry.Action, boolToInt(entry.Success), entry.LockNo,
		nullableString(entry.Actor), entry.Source, detailsJSON,
		entry.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	filter.Limit = min(filter.Limit, maxListLimit)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"serial", filter.Serial},
		{"action", filter.Action},
		{"source", filter.Source},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM unlock_audit " + where //nolint:gosec // WHERE built from fixed column names
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	query := "SELECT id, serial, action, success, lock_no, actor, source, details, created_at FROM unlock_audit " + //nolint:gosec // WHERE built from fixed column names
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var success int
		var actor, detailsJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Serial, &e.Action, &success, &e.LockNo,
			&actor, &e.Source, &detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Success = success != 0
		e.Actor = actor.String
		if detailsJSON.Valid && detailsJSON.String != "" {
			var details map[string]any
			if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
				e.Details = details
			}
		}

		t, err := time.Parse(timestampLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// nullableString returns nil for empty strings so the column stays NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
