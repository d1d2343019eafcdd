package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/rocrate"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }

func TestNewFSCreatesLinkDir(t *testing.T) {
	s := tempStore(t)
	info, err := os.Stat(s.LinkDir())
	if err != nil {
		t.Fatalf("stat link dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("link dir is not a directory")
	}
	if filepath.Dir(s.LinkDir()) != s.Root() {
		t.Errorf("link dir %s not under root %s", s.LinkDir(), s.Root())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	want := &models.Snapshot{Version: 4, Crates: []models.CrateRecord{
		{
			ID: "c1", Path: "/work/crate", Digest: "abc", Valid: true,
			Artifacts: []models.ArtifactRecord{{
				EntityID: "data.csv", Name: "Data", Type: rocrate.TypeTag{"File"},
				CratePath: "/work/crate", Pseudonym: "data_file.csv", Version: models.ArtifactVersion,
				Fingerprint: "f00", SymbolicLink: strPtr("/cache/artifacts/data_file.csv"),
			}},
		},
		{ID: "c2", Path: "/work/broken", Digest: "def"},
	}}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadMissing(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Load(); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	s := tempStore(t)
	if err := os.WriteFile(filepath.Join(s.Root(), SnapshotFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := s.Load()
	if err == nil || errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	s := tempStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Save(&models.Snapshot{Version: i}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	entries, _ := os.ReadDir(s.Root())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".rocache-tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestEnsureLinkLifecycle(t *testing.T) {
	s := tempStore(t)
	target := filepath.Join(t.TempDir(), "a.txt")

	p, action, err := s.EnsureLink("a_file.txt", target)
	if err != nil {
		t.Fatalf("EnsureLink: %v", err)
	}
	if action != LinkCreated {
		t.Errorf("first action = %v, want created", action)
	}
	if p != filepath.Join(s.LinkDir(), "a_file.txt") {
		t.Errorf("path = %s", p)
	}

	_, action, err = s.EnsureLink("a_file.txt", target)
	if err != nil {
		t.Fatalf("EnsureLink again: %v", err)
	}
	if action != LinkUnchanged {
		t.Errorf("second action = %v, want unchanged", action)
	}

	other := filepath.Join(t.TempDir(), "b.txt")
	_, action, err = s.EnsureLink("a_file.txt", other)
	if err != nil {
		t.Fatalf("EnsureLink retarget: %v", err)
	}
	if action != LinkReplaced {
		t.Errorf("retarget action = %v, want replaced", action)
	}
	got, err := s.Resolve("a_file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != other {
		t.Errorf("Resolve = %s, want %s", got, other)
	}
}

func TestEnsureLinkReplacesRegularFile(t *testing.T) {
	s := tempStore(t)
	if err := os.WriteFile(filepath.Join(s.LinkDir(), "squatter"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, action, err := s.EnsureLink("squatter", "/somewhere")
	if err != nil {
		t.Fatalf("EnsureLink: %v", err)
	}
	if action != LinkReplaced {
		t.Errorf("action = %v, want replaced", action)
	}
	info, err := os.Lstat(filepath.Join(s.LinkDir(), "squatter"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("expected a symlink")
	}
}

func TestInvalidPseudonymsRejected(t *testing.T) {
	s := tempStore(t)
	for _, name := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		if _, _, err := s.EnsureLink(name, "/x"); !errors.Is(err, ErrInvalidPseudonym) {
			t.Errorf("EnsureLink(%q) err = %v, want ErrInvalidPseudonym", name, err)
		}
		if _, err := s.Resolve(name); !errors.Is(err, ErrInvalidPseudonym) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidPseudonym", name, err)
		}
	}
}

func TestResolveMissing(t *testing.T) {
	s := tempStore(t)
	if _, err := s.Resolve("ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPruneAndClear(t *testing.T) {
	s := tempStore(t)
	for _, name := range []string{"a", "b", "c"} {
		if _, _, err := s.EnsureLink(name, "/target/"+name); err != nil {
			t.Fatal(err)
		}
	}
	removed, err := s.Prune(map[string]struct{}{"b": {}})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if !reflect.DeepEqual(removed, []string{"a", "c"}) {
		t.Errorf("removed = %v", removed)
	}
	names, _ := s.Links()
	if !reflect.DeepEqual(names, []string{"b"}) {
		t.Errorf("links after prune = %v", names)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	names, _ = s.Links()
	if len(names) != 0 {
		t.Errorf("links after clear = %v", names)
	}
}

func TestRemoveLinkMissingIsNoop(t *testing.T) {
	s := tempStore(t)
	if err := s.RemoveLink("nothing"); err != nil {
		t.Errorf("RemoveLink: %v", err)
	}
}
