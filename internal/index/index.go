package index

import "github.com/starford/rocache/internal/models"

// ArtifactIndex defines the interface for artifact index operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type ArtifactIndex interface {
	Rebuild(s *models.Snapshot) error
	Version() (int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Lookup(pseudonym string) (*ArtifactRow, error)
	ListCrates() ([]CrateRow, error)
	Close() error
}

// Verify *DB satisfies ArtifactIndex at compile time.
var _ ArtifactIndex = (*DB)(nil)
