// Package index provides a SQLite-backed artifact index with optional FTS5
// full-text search. The index is derived from the snapshot and can be rebuilt
// at any time.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS crates (
	path           TEXT PRIMARY KEY,
	uuid           TEXT NOT NULL DEFAULT '',
	digest         TEXT NOT NULL DEFAULT '',
	valid          INTEGER NOT NULL DEFAULT 0,
	artifact_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS artifacts (
	pseudonym   TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	crate_path  TEXT NOT NULL REFERENCES crates(path) ON DELETE CASCADE,
	link        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pseudonym, crate_path)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_crate ON artifacts(crate_path);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// schemaVersion is stored in PRAGMA user_version. An index written with an
// older layout is dropped and rebuilt from the snapshot.
const schemaVersion = 2

const dropSchemaSQL = `
DROP TABLE IF EXISTS artifacts_fts;
DROP TABLE IF EXISTS artifacts;
DROP TABLE IF EXISTS crates;
DROP TABLE IF EXISTS meta;
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	var v int
	if err := conn.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}
	if v == schemaVersion {
		return nil
	}
	if _, err := conn.Exec(dropSchemaSQL); err != nil {
		return fmt.Errorf("index: drop old schema: %w", err)
	}
	if _, err := conn.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("index: set schema version: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
