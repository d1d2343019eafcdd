package crateservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/manager"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/testutil"
	"github.com/starford/rocache/internal/validator"
)

type fixture struct {
	root string
	svc  *Service
	mgr  *manager.Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	_, store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	root := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	v := validator.New(validator.CheckerFunc(func(context.Context, string) (validator.Verdict, error) {
		return validator.Valid, nil
	}))

	var svc *Service
	mgr := manager.New(root, store, v,
		manager.WithLogger(logger),
		manager.WithOnUpdate(func(s *models.Snapshot, r *manager.Report) { svc.HandleUpdate(s, r) }))
	svc = NewService(mgr, store, db, append([]Option{WithLogger(logger)}, opts...)...)
	return &fixture{root: root, svc: svc, mgr: mgr}
}

func TestRescanIndexesSnapshot(t *testing.T) {
	f := newFixture(t)
	testutil.WriteSampleCrate(t, filepath.Join(f.root, "a"))

	res, err := f.svc.Rescan(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Version)
	require.Equal(t, 1, res.Actions["insert_valid"])
	require.Equal(t, 3, res.LinksCreated)

	crates, err := f.svc.Crates(context.Background())
	require.NoError(t, err)
	require.Len(t, crates, 1)
	require.True(t, crates[0].Valid)
	require.Equal(t, 3, crates[0].ArtifactCount)
}

func TestRescanNotifiesListeners(t *testing.T) {
	var versions []int
	f := newFixture(t, WithListener(func(s *models.Snapshot, _ *manager.Report) {
		versions = append(versions, s.Version)
	}))
	_, err := f.svc.Rescan(context.Background())
	require.NoError(t, err)
	_, err = f.svc.Rescan(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, versions)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	testutil.WriteSampleCrate(t, filepath.Join(f.root, "a"))
	_, err := f.svc.Rescan(context.Background())
	require.NoError(t, err)

	hits, err := f.svc.Search(context.Background(), "measurements", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "data_file.csv", hits[0].Pseudonym)
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	dir := testutil.WriteSampleCrate(t, filepath.Join(f.root, "a"))
	_, err := f.svc.Rescan(context.Background())
	require.NoError(t, err)

	d, err := f.svc.Resolve(context.Background(), "data_file.csv")
	require.NoError(t, err)
	require.Equal(t, "data.csv", d.EntityID)
	require.Equal(t, "File", d.Type)
	require.Equal(t, filepath.Join(dir, "data.csv"), d.Target)
	require.NotEmpty(t, d.Link)
}

func TestResolveFallsBackToLinkDir(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.store.EnsureLink("manual", "/some/where")
	require.NoError(t, err)

	d, err := f.svc.Resolve(context.Background(), "manual")
	require.NoError(t, err)
	require.Equal(t, "/some/where", d.Target)
	require.Empty(t, d.EntityID)
}

func TestResolveUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), "nope")
	require.True(t, errors.Is(err, apperr.ErrNotFound), "err = %v", err)

	_, err = f.svc.Resolve(context.Background(), "../escape")
	require.True(t, errors.Is(err, apperr.ErrNotFound), "err = %v", err)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Snapshot(context.Background())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	testutil.WriteSampleCrate(t, filepath.Join(f.root, "a"))
	_, err = f.svc.Rescan(context.Background())
	require.NoError(t, err)

	snap, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, snap.Version)
	require.Len(t, snap.Crates, 1)
}

func TestSyncRebuildsStaleIndex(t *testing.T) {
	f := newFixture(t)
	testutil.WriteSampleCrate(t, filepath.Join(f.root, "a"))
	_, _, err := f.mgr.Update(context.Background())
	require.NoError(t, err)

	// Wipe the index behind the service's back.
	require.NoError(t, f.svc.db.Rebuild(models.Empty()))
	require.NoError(t, f.svc.Sync(context.Background()))

	crates, err := f.svc.Crates(context.Background())
	require.NoError(t, err)
	require.Len(t, crates, 1)
}

type failingUpdater struct{}

func (failingUpdater) Update(context.Context) (*models.Snapshot, *manager.Report, error) {
	return nil, nil, manager.ErrNoScanRoot
}

func TestRescanSetupError(t *testing.T) {
	_, store := testutil.TestStore(t)
	svc := NewService(failingUpdater{}, store, testutil.TestDB(t))
	res, err := svc.Rescan(context.Background())
	require.Nil(t, res)
	require.ErrorIs(t, err, manager.ErrNoScanRoot)
}
