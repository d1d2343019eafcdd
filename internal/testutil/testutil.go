// Package testutil provides shared test helpers for building crates, cache
// stores and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/rocache/internal/index"
	"github.com/starford/rocache/internal/rocrate"
	"github.com/starford/rocache/internal/storage"
)

// SampleMetadata is a small crate with one file, one script and one dataset.
const SampleMetadata = `{
  "@context": "https://w3id.org/ro/crate/1.1/context",
  "@graph": [
    {
      "@id": "ro-crate-metadata.json",
      "@type": "CreativeWork",
      "conformsTo": {"@id": "https://w3id.org/ro/crate/1.1"},
      "about": {"@id": "./"}
    },
    {
      "@id": "./",
      "@type": "Dataset",
      "name": "Sample crate",
      "hasPart": [{"@id": "data.csv"}, {"@id": "run.py"}, {"@id": "results/"}]
    },
    {"@id": "data.csv", "@type": "File", "name": "Data", "description": "Raw measurements"},
    {"@id": "run.py", "@type": ["File", "SoftwareSourceCode"], "name": "Runner"},
    {"@id": "results/", "@type": "Dataset", "name": "Results"}
  ]
}`

// SampleFiles are the payload files referenced by SampleMetadata.
var SampleFiles = []string{"data.csv", "run.py", "results/out.txt"}

// WriteCrate creates a crate directory at dir with the given metadata and
// empty payload files, and returns dir.
func WriteCrate(t *testing.T, dir, metadata string, files ...string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, rocrate.MetadataFile), []byte(metadata), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		p := filepath.Join(dir, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(f), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// WriteSampleCrate creates a crate with SampleMetadata and SampleFiles.
func WriteSampleCrate(t *testing.T, dir string) string {
	t.Helper()
	return WriteCrate(t, dir, SampleMetadata, SampleFiles...)
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "rocache-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary cache directory with a storage.Provider.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	cacheDir := t.TempDir()
	store, err := storage.NewFS(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	return cacheDir, store
}
