// Package database provides SQLite connectivity for the EZVIZ bridge.
//
// The store is small and local: the cached cloud session (so restarts do
// not log in again), snapshot history and alarm events. It manages:
//   - The connection, with optional WAL mode and a busy timeout
//   - Schema migrations loaded from an fs.FS (see the migrations package)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT.
package database
