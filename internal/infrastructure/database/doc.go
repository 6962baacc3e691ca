// Package database provides the SQLite connection used for registry
// snapshots.
//
// This package manages:
//   - Opening the database file (or an in-memory database for tests)
//   - WAL mode and busy timeout configuration
//   - Schema migrations read from an fs.FS, tracked in schema_migrations
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Saving.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
