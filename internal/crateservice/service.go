// Package crateservice coordinates the crate manager, the cache store and
// the artifact index for the outer surfaces (HTTP API, MCP, CLI).
package crateservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/index"
	"github.com/starford/rocache/internal/manager"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/storage"
)

// Updater runs one update cycle.
type Updater interface {
	Update(ctx context.Context) (*models.Snapshot, *manager.Report, error)
}

// CrateItem is a crate in a list response.
type CrateItem struct {
	Path          string `json:"path"`
	UUID          string `json:"uuid"`
	Digest        string `json:"digest"`
	Valid         bool   `json:"valid"`
	ArtifactCount int    `json:"artifact_count"`
}

// ArtifactDetail is the resolved view of one pseudonym.
type ArtifactDetail struct {
	Pseudonym   string `json:"pseudonym"`
	EntityID    string `json:"entity_id,omitempty"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	CratePath   string `json:"crate_path,omitempty"`
	Link        string `json:"link,omitempty"`
	// Target is where the link points; empty for artifacts without a link.
	Target string `json:"target,omitempty"`
}

// SearchHit is a single search result.
type SearchHit struct {
	Pseudonym string `json:"pseudonym"`
	Name      string `json:"name"`
	CratePath string `json:"crate_path"`
	Snippet   string `json:"snippet"`
}

// RescanResult summarises an update cycle.
type RescanResult struct {
	Version       int            `json:"version"`
	Actions       map[string]int `json:"actions"`
	LinksCreated  int            `json:"links_created"`
	LinksReplaced int            `json:"links_replaced"`
	LinksFailed   int            `json:"links_failed"`
	LinksPruned   int            `json:"links_pruned"`
	DurationMS    int64          `json:"duration_ms"`
}

// NewRescanResult builds a RescanResult from a manager report.
func NewRescanResult(r *manager.Report) *RescanResult {
	actions := make(map[string]int)
	for _, e := range r.Entries {
		actions[e.Action.String()]++
	}
	return &RescanResult{
		Version:       r.Version,
		Actions:       actions,
		LinksCreated:  r.Links.Created,
		LinksReplaced: r.Links.Replaced,
		LinksFailed:   r.Links.Failed,
		LinksPruned:   len(r.Pruned),
		DurationMS:    r.Duration.Milliseconds(),
	}
}

// Service coordinates manager, store and index operations.
type Service struct {
	updater   Updater
	store     storage.Provider
	db        index.ArtifactIndex
	logger    *slog.Logger
	listeners []manager.UpdateFunc
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithListener adds a function called after every reindexed update.
func WithListener(fn manager.UpdateFunc) Option {
	return func(s *Service) { s.listeners = append(s.listeners, fn) }
}

// NewService creates a new crate service.
func NewService(updater Updater, store storage.Provider, db index.ArtifactIndex, opts ...Option) *Service {
	s := &Service{updater: updater, store: store, db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleUpdate rebuilds the index from a freshly saved snapshot and notifies
// listeners. It is meant to be installed as the manager's update callback.
func (s *Service) HandleUpdate(snap *models.Snapshot, r *manager.Report) {
	if err := s.db.Rebuild(snap); err != nil {
		s.logger.Error("crateservice: reindex failed", slog.String("error", err.Error()))
	} else {
		s.logger.Debug("crateservice: reindexed", slog.Int("version", snap.Version))
	}
	for _, fn := range s.listeners {
		fn(snap, r)
	}
}

// Sync rebuilds the index from the stored snapshot when the index is behind.
func (s *Service) Sync(_ context.Context) error {
	snap, err := s.store.Load()
	if errors.Is(err, storage.ErrNoSnapshot) {
		snap = models.Empty()
	} else if err != nil {
		return fmt.Errorf("crateservice: sync: %w", err)
	}
	v, err := s.db.Version()
	if err != nil {
		return fmt.Errorf("crateservice: sync: %w", err)
	}
	if v == snap.Version && v != 0 {
		return nil
	}
	if err := s.db.Rebuild(snap); err != nil {
		return fmt.Errorf("crateservice: sync: %w", err)
	}
	s.logger.Info("crateservice: index synced", slog.Int("version", snap.Version))
	return nil
}

// Rescan runs one update cycle. A failed save returns both the result and
// the error.
func (s *Service) Rescan(ctx context.Context) (*RescanResult, error) {
	_, report, err := s.updater.Update(ctx)
	if report == nil {
		return nil, err
	}
	return NewRescanResult(report), err
}

// Crates lists every known crate.
func (s *Service) Crates(_ context.Context) ([]CrateItem, error) {
	rows, err := s.db.ListCrates()
	if err != nil {
		return nil, err
	}
	items := make([]CrateItem, len(rows))
	for i, r := range rows {
		items[i] = CrateItem{
			Path:          r.Path,
			UUID:          r.UUID,
			Digest:        r.Digest,
			Valid:         r.Valid,
			ArtifactCount: r.ArtifactCount,
		}
	}
	return items, nil
}

// Search finds artifacts by name, description or entity id.
func (s *Service) Search(_ context.Context, query string, limit int) ([]SearchHit, error) {
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{Pseudonym: r.Pseudonym, Name: r.Name, CratePath: r.CratePath, Snippet: r.Snippet}
	}
	return hits, nil
}

// Resolve looks a pseudonym up in the index and falls back to the link
// directory for links the index does not know about.
func (s *Service) Resolve(_ context.Context, pseudonym string) (*ArtifactDetail, error) {
	row, err := s.db.Lookup(pseudonym)
	switch {
	case err == nil:
		d := &ArtifactDetail{
			Pseudonym:   row.Pseudonym,
			EntityID:    row.EntityID,
			Name:        row.Name,
			Type:        row.Type,
			Description: row.Description,
			CratePath:   row.CratePath,
			Link:        row.Link,
		}
		if row.Link != "" {
			if target, err := s.store.Resolve(pseudonym); err == nil {
				d.Target = target
			}
		}
		return d, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	target, err := s.store.Resolve(pseudonym)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPseudonym) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return &ArtifactDetail{Pseudonym: pseudonym, Target: target}, nil
}

// Snapshot returns the stored snapshot.
func (s *Service) Snapshot(_ context.Context) (*models.Snapshot, error) {
	snap, err := s.store.Load()
	if errors.Is(err, storage.ErrNoSnapshot) {
		return nil, apperr.ErrNotFound
	}
	return snap, err
}
