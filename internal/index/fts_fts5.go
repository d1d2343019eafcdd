//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS artifacts_fts USING fts5(
			pseudonym UNINDEXED,
			crate_path UNINDEXED,
			name,
			description,
			entity_id,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM artifacts_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(tx *sql.Tx, pseudonym, cratePath, name, description, entityID string) error {
	_, err := tx.Exec(`INSERT INTO artifacts_fts (pseudonym, crate_path, name, description, entity_id) VALUES (?, ?, ?, ?, ?)`,
		pseudonym, cratePath, name, description, entityID)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.pseudonym,
		       a.name,
		       a.crate_path,
		       snippet(artifacts_fts, 3, '<b>', '</b>', '...', 32)
		FROM artifacts_fts f
		JOIN artifacts a ON a.pseudonym = f.pseudonym AND a.crate_path = f.crate_path
		WHERE artifacts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Pseudonym, &r.Name, &r.CratePath, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
