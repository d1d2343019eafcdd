// Package storage owns the on-disk cache: the snapshot document and the
// directory of pseudonym symbolic links. Nothing else creates or removes
// entries in the link directory.
package storage

import (
	"errors"

	"github.com/starford/rocache/internal/models"
)

// SnapshotFile is the name of the snapshot document inside the cache root.
const SnapshotFile = "rocrate_data.json"

// LinkDirName is the name of the link directory inside the cache root.
const LinkDirName = "artifacts"

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet.
	ErrNoSnapshot = errors.New("storage: no snapshot")
	// ErrInvalidPseudonym is returned for names that are not a single path element.
	ErrInvalidPseudonym = errors.New("storage: invalid pseudonym")
)

// LinkAction reports what EnsureLink did to the link directory.
type LinkAction int

const (
	// LinkUnchanged means the link already pointed at the target.
	LinkUnchanged LinkAction = iota
	// LinkCreated means a new link was made where nothing existed.
	LinkCreated
	// LinkReplaced means a stale link or file was removed and the link re-made.
	LinkReplaced
)

func (a LinkAction) String() string {
	switch a {
	case LinkCreated:
		return "created"
	case LinkReplaced:
		return "replaced"
	default:
		return "unchanged"
	}
}

// Provider is the interface for cache store operations.
type Provider interface {
	// Load returns the persisted snapshot, or ErrNoSnapshot.
	Load() (*models.Snapshot, error)
	// Save replaces the persisted snapshot.
	Save(s *models.Snapshot) error
	// EnsureLink makes the link named pseudonym point at target and returns
	// the link's absolute path.
	EnsureLink(pseudonym, target string) (string, LinkAction, error)
	// RemoveLink deletes the link named pseudonym; a missing link is not an error.
	RemoveLink(pseudonym string) error
	// Resolve returns the target of the link named pseudonym.
	Resolve(pseudonym string) (string, error)
	// Links lists link names in lexical order.
	Links() ([]string, error)
	// Prune removes every link whose name is not in keep and returns the
	// removed names.
	Prune(keep map[string]struct{}) ([]string, error)
	// Clear removes every link.
	Clear() error
	// LinkDir returns the absolute path of the link directory.
	LinkDir() string
}
