// Package db is the durable store for the occupancy engine: zone
// configuration, the raw event log, and periodic occupancy snapshots.
// The in-memory series store is authoritative for analytics reads; sqlite
// is the write-through history that survives restarts.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sqlite connection for the occupancy store.
type DB struct {
	*sql.DB
	path string
}

// OpenDB opens the sqlite database without touching the schema. Use NewDB
// unless migrations are being driven separately.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// sqlite serialises writers; a busy timeout avoids spurious SQLITE_BUSY
	// when the aggregator and ingestion write concurrently.
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	return &DB{DB: conn, path: path}, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }
