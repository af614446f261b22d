package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
	msPerSecond     = 1000

	// connectionTimeout bounds the initial ping when ctx carries no deadline.
	connectionTimeout = 5 * time.Second

	connMaxIdleTime = 30 * time.Minute
	connMaxLifetime = time.Hour

	memoryPath = ":memory:"
)

// DB is the bridge's SQLite store: cached cloud sessions, snapshot
// history, alarm events and the unlock audit trail.
type DB struct {
	*sql.DB
	path string
}

// Config contains database configuration options.
// These map to the database section of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file, or ":memory:".
	// The directory is created if it doesn't exist.
	Path string

	// WALMode enables Write-Ahead Logging so the API can read while the
	// poller writes history.
	WALMode bool

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int
}

// Open opens (creating if needed) the SQLite database at cfg.Path.
//
// The parent directory is created, the connection is verified with a ping
// and the file is restricted to its owner. An in-memory database skips the
// filesystem steps and WAL.
//
// Parameters:
//   - ctx: Bounds the ping (5s when ctx carries no deadline)
//   - cfg: Database configuration
//
// Returns:
//   - *DB: Connected database wrapper
//   - error: If the directory, driver or ping fails
func Open(ctx context.Context, cfg Config) (*DB, error) {
	inMemory := cfg.Path == memoryPath
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	configurePool(sqlDB, inMemory)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, connectionTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	if !inMemory {
		_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // File may appear after first write
	}
	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// dsn builds the go-sqlite3 connection string.
// See https://github.com/mattn/go-sqlite3#connection-string
func dsn(cfg Config) string {
	params := url.Values{}
	params.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*msPerSecond))
	params.Set("_foreign_keys", "on")
	if cfg.WALMode && cfg.Path != memoryPath {
		params.Set("_journal_mode", "WAL")
		params.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + params.Encode()
}

// configurePool keeps a single connection: SQLite has one writer, and an
// in-memory database exists only on the connection that created it.
func configurePool(db *sql.DB, inMemory bool) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if inMemory {
		return
	}
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the database answers a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
