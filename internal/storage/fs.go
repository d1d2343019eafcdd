package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/models"
)

// FS implements Provider on the local file system.
type FS struct {
	root    string // absolute cache root
	linkDir string
}

// DefaultDir returns the per-user cache location.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("storage: user cache dir: %w", err)
	}
	return filepath.Join(base, "rocrate-cache"), nil
}

// NewFS creates an FS rooted at root, creating the root and link directory
// when missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	linkDir := filepath.Join(abs, LinkDirName)
	if err := os.MkdirAll(linkDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create link dir: %w", err)
	}
	return &FS{root: abs, linkDir: linkDir}, nil
}

// Root returns the cache root.
func (f *FS) Root() string { return f.root }

// LinkDir implements Provider.
func (f *FS) LinkDir() string { return f.linkDir }

// linkPath resolves a pseudonym inside the link directory and rejects any
// name that would escape it.
func (f *FS) linkPath(pseudonym string) (string, error) {
	if pseudonym == "" || pseudonym == "." || pseudonym == ".." ||
		strings.ContainsAny(pseudonym, `/\`) || strings.ContainsRune(pseudonym, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPseudonym, pseudonym)
	}
	return filepath.Join(f.linkDir, pseudonym), nil
}

// Load implements Provider.
func (f *FS) Load() (*models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(f.root, SnapshotFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("storage: read snapshot: %w", err)
	}
	var s models.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	return &s, nil
}

// Save atomically writes the snapshot: tmp file → fsync → rename.
func (f *FS) Save(s *models.Snapshot) error {
	content, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(f.root, ".rocache-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(f.root, SnapshotFile)); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// EnsureLink implements Provider. A link that already points at target is
// left untouched.
func (f *FS) EnsureLink(pseudonym, target string) (string, LinkAction, error) {
	p, err := f.linkPath(pseudonym)
	if err != nil {
		return "", LinkUnchanged, err
	}

	action := LinkCreated
	info, err := os.Lstat(p)
	switch {
	case err == nil && info.Mode()&fs.ModeSymlink != 0:
		current, rlErr := os.Readlink(p)
		if rlErr == nil && current == target {
			return p, LinkUnchanged, nil
		}
		if err := os.Remove(p); err != nil {
			return "", LinkUnchanged, fmt.Errorf("storage: remove stale link %s: %w", pseudonym, err)
		}
		action = LinkReplaced
	case err == nil:
		if err := os.RemoveAll(p); err != nil {
			return "", LinkUnchanged, fmt.Errorf("storage: remove %s: %w", pseudonym, err)
		}
		action = LinkReplaced
	case !errors.Is(err, fs.ErrNotExist):
		return "", LinkUnchanged, fmt.Errorf("storage: stat link %s: %w", pseudonym, err)
	}

	if err := os.Symlink(target, p); err != nil {
		return "", LinkUnchanged, fmt.Errorf("storage: symlink %s: %w", pseudonym, err)
	}
	return p, action, nil
}

// RemoveLink implements Provider.
func (f *FS) RemoveLink(pseudonym string) error {
	p, err := f.linkPath(pseudonym)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove link %s: %w", pseudonym, err)
	}
	return nil
}

// Resolve implements Provider.
func (f *FS) Resolve(pseudonym string) (string, error) {
	p, err := f.linkPath(pseudonym)
	if err != nil {
		return "", err
	}
	target, err := os.Readlink(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("storage: resolve %s: %w", pseudonym, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: resolve %s: %w", pseudonym, err)
	}
	return target, nil
}

// Links implements Provider.
func (f *FS) Links() ([]string, error) {
	entries, err := os.ReadDir(f.linkDir)
	if err != nil {
		return nil, fmt.Errorf("storage: list links: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink != 0 {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Prune implements Provider.
func (f *FS) Prune(keep map[string]struct{}) ([]string, error) {
	names, err := f.Links()
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := f.RemoveLink(name); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}

// Clear implements Provider.
func (f *FS) Clear() error {
	_, err := f.Prune(nil)
	return err
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
