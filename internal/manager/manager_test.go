package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/rocrate"
	"github.com/starford/rocache/internal/storage"
	"github.com/starford/rocache/internal/testutil"
	"github.com/starford/rocache/internal/validator"
)

type env struct {
	root  string
	cache string
	store *storage.FS
	mgr   *Manager

	mu      sync.Mutex
	invalid map[string]bool
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	cache, store := testutil.TestStore(t)
	e := &env{root: t.TempDir(), cache: cache, store: store, invalid: map[string]bool{}}
	v := validator.New(validator.CheckerFunc(func(_ context.Context, p string) (validator.Verdict, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.invalid[p] {
			return validator.Invalid, nil
		}
		return validator.Valid, nil
	}))
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	e.mgr = New(e.root, store, v, opts...)
	return e
}

func (e *env) crate(t *testing.T, name string) string {
	t.Helper()
	return testutil.WriteSampleCrate(t, filepath.Join(e.root, name))
}

func (e *env) setInvalid(path string, invalid bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalid[path] = invalid
}

func (e *env) update(t *testing.T) (*models.Snapshot, *Report) {
	t.Helper()
	s, r, err := e.mgr.Update(context.Background())
	require.NoError(t, err)
	return s, r
}

func (e *env) links(t *testing.T) []string {
	t.Helper()
	names, err := e.store.Links()
	require.NoError(t, err)
	return names
}

func rewriteMetadata(t *testing.T, dir, from, to string) {
	t.Helper()
	p := filepath.Join(dir, rocrate.MetadataFile)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte(strings.ReplaceAll(string(data), from, to)), 0o644))
}

func TestUpdateFirstRun(t *testing.T) {
	e := newEnv(t)
	good := e.crate(t, "good")
	bad := e.crate(t, "bad")
	e.setInvalid(bad, true)

	s, r := e.update(t)
	require.Equal(t, 1, s.Version)
	require.Len(t, s.Crates, 2)

	byPath := s.ByPath()
	require.True(t, byPath[good].Valid)
	require.Len(t, byPath[good].Artifacts, 3)
	require.NotEmpty(t, byPath[good].ID)
	require.NotEmpty(t, byPath[good].Digest)
	require.False(t, byPath[bad].Valid)
	require.Nil(t, byPath[bad].Artifacts)

	require.Equal(t, 1, r.Count(ActionInsertValid))
	require.Equal(t, 1, r.Count(ActionInsertInvalid))
	require.Equal(t, 3, r.Links.Created)
	require.ElementsMatch(t, []string{"data_file.csv", "results", "run_script.py"}, e.links(t))

	loaded, err := e.store.Load()
	require.NoError(t, err)
	require.Equal(t, s, loaded)
}

func TestUpdateIdempotent(t *testing.T) {
	e := newEnv(t)
	e.crate(t, "a")
	bad := e.crate(t, "b")
	e.setInvalid(bad, true)

	first, _ := e.update(t)
	second, r := e.update(t)

	require.Equal(t, 2, second.Version)
	require.Equal(t, 2, r.Count(ActionKeep))
	require.Zero(t, r.Links.Mutations())
	require.Empty(t, r.Pruned)
	require.False(t, r.Changed())
	require.Equal(t, first.Crates, second.Crates)
}

func TestUpdateReextract(t *testing.T) {
	e := newEnv(t)
	dir := e.crate(t, "a")
	first, _ := e.update(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "values.csv"), nil, 0o644))
	rewriteMetadata(t, dir, `"data.csv"`, `"values.csv"`)

	second, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionReextract))
	require.NotEqual(t, first.Crates[0].ID, second.Crates[0].ID)
	require.NotEqual(t, first.Crates[0].Digest, second.Crates[0].Digest)
	require.Equal(t, []string{"data_file.csv"}, r.Pruned)
	require.ElementsMatch(t, []string{"values_file.csv", "results", "run_script.py"}, e.links(t))
}

func TestUpdateInvalidate(t *testing.T) {
	e := newEnv(t)
	dir := e.crate(t, "a")
	e.update(t)

	e.setInvalid(dir, true)
	s, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionInvalidate))
	require.False(t, s.Crates[0].Valid)
	require.Nil(t, s.Crates[0].Artifacts)
	require.Len(t, r.Pruned, 3)
	require.Empty(t, e.links(t))
}

func TestUpdateInvalidTransitions(t *testing.T) {
	e := newEnv(t)
	dir := e.crate(t, "a")
	e.setInvalid(dir, true)
	first, _ := e.update(t)

	_, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionKeep))

	rewriteMetadata(t, dir, "Sample crate", "Changed crate")
	second, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionReplaceInvalid))
	require.NotEqual(t, first.Crates[0].ID, second.Crates[0].ID)

	e.setInvalid(dir, false)
	third, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionInsertValid))
	require.True(t, third.Crates[0].Valid)
	require.Len(t, e.links(t), 3)
}

func TestUpdateDrop(t *testing.T) {
	e := newEnv(t)
	keep := e.crate(t, "keep")
	gone := e.crate(t, "gone")
	e.update(t)

	require.NoError(t, os.RemoveAll(gone))
	s, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionDrop))
	require.Equal(t, 1, r.Count(ActionKeep))
	require.Len(t, s.Crates, 1)
	require.Equal(t, keep, s.Crates[0].Path)
	require.ElementsMatch(t, []string{"data_file.csv", "results", "run_script.py"}, r.Pruned)
	// The surviving crate keeps the names it was granted when both existed.
	require.ElementsMatch(t, []string{"data_file-2.csv", "results-2", "run_script-2.py"}, e.links(t))
}

func TestUpdateKeptCrateKeepsPseudonyms(t *testing.T) {
	e := newEnv(t)
	old := e.crate(t, "z-old")
	e.update(t)

	newer := e.crate(t, "a-new")
	s, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionKeep))
	require.Equal(t, 1, r.Count(ActionInsertValid))

	target, err := e.store.Resolve("data_file.csv")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(old, "data.csv"), target)

	target, err = e.store.Resolve("data_file-2.csv")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(newer, "data.csv"), target)

	require.Len(t, s.Pseudonyms(), 6)
}

func TestUpdateRestoresDeletedLink(t *testing.T) {
	e := newEnv(t)
	e.crate(t, "a")
	e.update(t)

	require.NoError(t, e.store.RemoveLink("run_script.py"))
	s, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionKeep))
	require.Equal(t, 1, r.Links.Created)
	require.Len(t, e.links(t), 3)
	a, ok := s.Artifact("run_script.py")
	require.True(t, ok)
	require.NotNil(t, a.SymbolicLink)
}

func TestUpdatePrunesForeignLinks(t *testing.T) {
	e := newEnv(t)
	e.crate(t, "a")
	_, _, err := e.store.EnsureLink("leftover", "/nowhere")
	require.NoError(t, err)

	_, r := e.update(t)
	require.Equal(t, []string{"leftover"}, r.Pruned)
}

func TestUpdateUnparsableMetadata(t *testing.T) {
	e := newEnv(t)
	testutil.WriteCrate(t, filepath.Join(e.root, "broken"), "{not json")

	s, r := e.update(t)
	require.Equal(t, 1, r.Count(ActionInsertValid))
	require.True(t, s.Crates[0].Valid)
	require.NotNil(t, s.Crates[0].Artifacts)
	require.Empty(t, s.Crates[0].Artifacts)
}

func TestUpdateCorruptSnapshotStartsOver(t *testing.T) {
	e := newEnv(t)
	e.crate(t, "a")
	require.NoError(t, os.WriteFile(filepath.Join(e.cache, storage.SnapshotFile), []byte("garbage"), 0o644))

	s, r := e.update(t)
	require.Equal(t, 1, s.Version)
	require.Equal(t, 1, r.Count(ActionInsertValid))
}

func TestUpdateEmptyRoot(t *testing.T) {
	e := newEnv(t)
	s, r := e.update(t)
	require.Equal(t, 1, s.Version)
	require.Empty(t, s.Crates)
	require.Empty(t, r.Entries)
}

func TestUpdateNoScanRoot(t *testing.T) {
	_, store := testutil.TestStore(t)
	m := New("", store, validator.New(validator.CheckerFunc(nil)))
	_, _, err := m.Update(context.Background())
	require.ErrorIs(t, err, ErrNoScanRoot)
}

func TestUpdateMissingScanRoot(t *testing.T) {
	_, store := testutil.TestStore(t)
	m := New(filepath.Join(t.TempDir(), "missing"), store, validator.New(validator.CheckerFunc(nil)))
	_, _, err := m.Update(context.Background())
	require.ErrorIs(t, err, ErrScanRoot)
}

type failingSave struct {
	*storage.FS
}

func (failingSave) Save(*models.Snapshot) error { return errors.New("disk full") }

func TestUpdateSaveFailure(t *testing.T) {
	e := newEnv(t)
	e.crate(t, "a")

	called := false
	v := validator.New(validator.CheckerFunc(func(context.Context, string) (validator.Verdict, error) {
		return validator.Valid, nil
	}))
	m := New(e.root, failingSave{e.store}, v,
		WithLogger(quietLogger()),
		WithOnUpdate(func(*models.Snapshot, *Report) { called = true }))

	s, r, err := m.Update(context.Background())
	require.Error(t, err)
	require.NotNil(t, s)
	require.NotNil(t, r)
	require.Len(t, s.Crates, 1)
	require.False(t, called)
	require.Nil(t, r.Pruned)
}

type recorder struct {
	calls int
	last  *Report
}

func (r *recorder) ObserveUpdate(_ *models.Snapshot, rep *Report) {
	r.calls++
	r.last = rep
}

func TestUpdateCallbacks(t *testing.T) {
	rec := &recorder{}
	var got *models.Snapshot
	e := newEnv(t, WithRecorder(rec), WithOnUpdate(func(s *models.Snapshot, _ *Report) { got = s }))
	e.crate(t, "a")

	s, r := e.update(t)
	require.Equal(t, 1, rec.calls)
	require.Same(t, r, rec.last)
	require.Same(t, s, got)
}

func TestUpdateIgnorePatterns(t *testing.T) {
	e := newEnv(t, WithIgnore([]string{"skip/**", "skip"}))
	e.crate(t, "a")
	e.crate(t, "skip/b")

	s, _ := e.update(t)
	require.Len(t, s.Crates, 1)
}

func TestUpdateSymlinkedRootKeepsCrates(t *testing.T) {
	e := newEnv(t)
	e.crate(t, "c1")
	e.update(t)
	require.Len(t, e.links(t), 3)

	link := filepath.Join(t.TempDir(), "root-link")
	if err := os.Symlink(e.root, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	v := validator.New(validator.CheckerFunc(func(context.Context, string) (validator.Verdict, error) {
		return validator.Valid, nil
	}))
	viaLink := New(link, e.store, v, WithLogger(quietLogger()))

	s, r, err := viaLink.Update(context.Background())
	require.NoError(t, err)
	require.Len(t, s.Crates, 1)
	require.Equal(t, 1, r.Count(ActionKeep))
	require.Zero(t, r.Count(ActionDrop))
	require.Empty(t, r.Pruned)
	require.Len(t, e.links(t), 3)
}
