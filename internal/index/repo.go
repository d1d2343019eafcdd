package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/models"
)

// CrateRow represents a row in the crates table.
type CrateRow struct {
	Path          string
	UUID          string
	Digest        string
	Valid         bool
	ArtifactCount int
}

// ArtifactRow represents a row in the artifacts table.
type ArtifactRow struct {
	Pseudonym   string
	EntityID    string
	Name        string
	Type        string
	Description string
	CratePath   string
	// Link is empty when the artifact has no symbolic link.
	Link string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Pseudonym string
	Name      string
	CratePath string
	Snippet   string
}

// Rebuild replaces the whole index with the contents of s in one transaction.
func (db *DB) Rebuild(s *models.Snapshot) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := ftsReset(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM artifacts`); err != nil {
		return fmt.Errorf("index: clear artifacts: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM crates`); err != nil {
		return fmt.Errorf("index: clear crates: %w", err)
	}

	crateStmt, err := tx.Prepare(`INSERT INTO crates (path, uuid, digest, valid, artifact_count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare crate insert: %w", err)
	}
	defer crateStmt.Close()

	artStmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO artifacts (pseudonym, entity_id, name, type, description, crate_path, link)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare artifact insert: %w", err)
	}
	defer artStmt.Close()

	for _, c := range s.Crates {
		if _, err := crateStmt.Exec(c.Path, c.ID, c.Digest, c.Valid, len(c.Artifacts)); err != nil {
			return fmt.Errorf("index: insert crate %s: %w", c.Path, err)
		}
		for _, a := range c.Artifacts {
			link := ""
			if a.SymbolicLink != nil {
				link = *a.SymbolicLink
			}
			res, err := artStmt.Exec(a.Pseudonym, a.EntityID, a.Name, a.Type.String(), a.Description, c.Path, link)
			if err != nil {
				return fmt.Errorf("index: insert artifact %s: %w", a.Pseudonym, err)
			}
			// A crate listing the same entity twice gets one row.
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if err := ftsInsert(tx, a.Pseudonym, c.Path, a.Name, a.Description, a.EntityID); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('version', ?)`, strconv.Itoa(s.Version)); err != nil {
		return fmt.Errorf("index: store version: %w", err)
	}
	return tx.Commit()
}

// Version returns the snapshot version the index was last rebuilt from, or 0.
func (db *DB) Version() (int, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = 'version'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("index: version: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("index: version: %w", err)
	}
	return n, nil
}

// Lookup returns the artifact with the given pseudonym. A remote entity
// shared by several crates has one row per crate; the first crate by path
// is returned.
func (db *DB) Lookup(pseudonym string) (*ArtifactRow, error) {
	var a ArtifactRow
	err := db.conn.QueryRow(`
		SELECT pseudonym, entity_id, name, type, description, crate_path, link
		FROM artifacts WHERE pseudonym = ?
		ORDER BY crate_path LIMIT 1`, pseudonym).
		Scan(&a.Pseudonym, &a.EntityID, &a.Name, &a.Type, &a.Description, &a.CratePath, &a.Link)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: lookup %s: %w", pseudonym, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: lookup: %w", err)
	}
	return &a, nil
}

// ListCrates returns every indexed crate ordered by path.
func (db *DB) ListCrates() ([]CrateRow, error) {
	rows, err := db.conn.Query(`SELECT path, uuid, digest, valid, artifact_count FROM crates ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("index: list crates: %w", err)
	}
	defer rows.Close()

	var out []CrateRow
	for rows.Next() {
		var c CrateRow
		if err := rows.Scan(&c.Path, &c.UUID, &c.Digest, &c.Valid, &c.ArtifactCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
