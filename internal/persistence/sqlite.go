package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/plc-core/internal/infrastructure/database"
	"github.com/nerrad567/plc-core/migrations"
)

// SQLiteStore keeps snapshots in the registry_snapshots table.
type SQLiteStore struct {
	db *database.DB
}

// OpenSQLiteStore opens the database at cfg.Path and applies migrations.
//
// Parameters:
//   - ctx: Context for the migration run
//   - cfg: Database settings from saving.database
//
// Returns:
//   - *SQLiteStore: Store owning the connection
//   - error: If the database cannot be opened or migrated
func OpenSQLiteStore(ctx context.Context, cfg database.Config) (*SQLiteStore, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database, applying migrations first.
// The store takes ownership of db and closes it in Close.
func NewSQLiteStore(ctx context.Context, db *database.DB) (*SQLiteStore, error) {
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("migrating snapshot database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save replaces both registry rows in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	savedAt := snap.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	const upsert = `
		INSERT INTO registry_snapshots (name, format_version, data, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			format_version = excluded.format_version,
			data = excluded.data,
			saved_at = excluded.saved_at`

	for _, row := range []struct {
		name string
		data []byte
	}{
		{groupsKey, snap.Groups},
		{cuesKey, snap.Cues},
	} {
		if row.data == nil {
			row.data = []byte{}
		}
		if _, err := tx.ExecContext(ctx, upsert,
			row.name, snap.FormatVersion, row.data, savedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("saving %s snapshot: %w", row.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

// Load returns the saved snapshot, or ErrNoSnapshot if there is none.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	if s.db == nil {
		return Snapshot{}, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, format_version, data, saved_at FROM registry_snapshots WHERE name IN (?, ?)",
		groupsKey, cuesKey,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading snapshot: %w", err)
	}
	defer rows.Close()

	var snap Snapshot
	found := 0
	for rows.Next() {
		var (
			name, savedAt string
			version       int
			data          []byte
		)
		if err := rows.Scan(&name, &version, &data, &savedAt); err != nil {
			return Snapshot{}, fmt.Errorf("scanning snapshot row: %w", err)
		}
		switch name {
		case groupsKey:
			snap.Groups = data
		case cuesKey:
			snap.Cues = data
		}
		snap.FormatVersion = version
		snap.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt) //nolint:errcheck // written by Save
		found++
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	if found == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
