// Package artifact turns crate entities into artifact records and keeps the
// pseudonym link directory in step with them.
package artifact

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/rocache/internal/checksum"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/pseudonym"
	"github.com/starford/rocache/internal/rocrate"
	"github.com/starford/rocache/internal/storage"
)

// Stats counts link directory operations performed by a Linker.
type Stats struct {
	Unchanged int
	Created   int
	Replaced  int
	Failed    int
	// Remote counts records that point outside the crate and get no link.
	Remote int
}

// Mutations is the number of operations that changed the link directory.
func (s Stats) Mutations() int { return s.Created + s.Replaced }

func (s *Stats) add(a storage.LinkAction) {
	switch a {
	case storage.LinkCreated:
		s.Created++
	case storage.LinkReplaced:
		s.Replaced++
	default:
		s.Unchanged++
	}
}

// Linker assigns pseudonyms and links for one update cycle. A pseudonym is
// granted to at most one target per cycle.
type Linker struct {
	store  storage.Provider
	logger *slog.Logger

	claims map[string]string
	stats  Stats
}

// NewLinker creates a Linker writing into store.
func NewLinker(store storage.Provider, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		store:  store,
		logger: logger,
		claims: make(map[string]string),
	}
}

// Claim reserves name for target and returns the pseudonym actually granted.
// A name already held by a different target is disambiguated with a numeric
// suffix.
func (l *Linker) Claim(name, target string) string {
	candidate := name
	for n := 2; ; n++ {
		held, ok := l.claims[candidate]
		if !ok || held == target {
			l.claims[candidate] = target
			return candidate
		}
		candidate = pseudonym.Disambiguate(name, n)
	}
}

// Claimed returns the set of pseudonyms granted so far.
func (l *Linker) Claimed() map[string]struct{} {
	out := make(map[string]struct{}, len(l.claims))
	for name := range l.claims {
		out[name] = struct{}{}
	}
	return out
}

// Stats returns the link operations performed so far.
func (l *Linker) Stats() Stats { return l.stats }

// Extract builds one record per data entity of crate and links each to its
// source file. Link failures leave the record without a link.
func (l *Linker) Extract(crate *rocrate.Crate) []models.ArtifactRecord {
	entities := crate.DataEntities()
	records := make([]models.ArtifactRecord, 0, len(entities))
	for _, e := range entities {
		fp, err := checksum.Fingerprint(e.Properties)
		if err != nil {
			l.logger.Warn("artifact: fingerprint failed",
				slog.String("crate", crate.Root),
				slog.String("entity", e.ID),
				slog.String("error", err.Error()))
		}
		rec := models.ArtifactRecord{
			EntityID:    e.ID,
			Name:        e.Name,
			Type:        e.Type,
			Description: e.Description,
			CratePath:   crate.Root,
			Pseudonym:   pseudonym.Generate(e.ID, e.Type, e.Description),
			Version:     models.ArtifactVersion,
			Fingerprint: fp,
		}
		l.link(&rec)
		records = append(records, rec)
	}
	return records
}

// Retain re-claims the pseudonyms of records carried over from a previous
// snapshot and makes sure their links are still correct. It returns updated
// copies; the input is not modified.
func (l *Linker) Retain(records []models.ArtifactRecord) []models.ArtifactRecord {
	if records == nil {
		return nil
	}
	out := make([]models.ArtifactRecord, len(records))
	for i, rec := range records {
		if rec.Pseudonym == "" {
			rec.Pseudonym = pseudonym.Generate(rec.EntityID, rec.Type, rec.Description)
		}
		l.link(&rec)
		out[i] = rec
	}
	return out
}

func (l *Linker) link(rec *models.ArtifactRecord) {
	rec.SymbolicLink = nil

	if rocrate.IsRemote(rec.EntityID) {
		rec.Pseudonym = l.Claim(rec.Pseudonym, rec.EntityID)
		l.stats.Remote++
		return
	}

	target := Source(rec.CratePath, rec.EntityID)
	rec.Pseudonym = l.Claim(rec.Pseudonym, target)

	p, action, err := l.store.EnsureLink(rec.Pseudonym, target)
	if err != nil {
		l.stats.Failed++
		l.logger.Warn("artifact: link failed",
			slog.String("pseudonym", rec.Pseudonym),
			slog.String("target", target),
			slog.String("error", err.Error()))
		return
	}
	l.stats.add(action)
	if action != storage.LinkUnchanged {
		l.logger.Debug("artifact: linked",
			slog.String("pseudonym", rec.Pseudonym),
			slog.String("target", target),
			slog.String("action", action.String()))
	}
	rec.SymbolicLink = &p
}

// Source returns the absolute path an entity id refers to inside the crate.
func Source(cratePath, entityID string) string {
	rel := strings.TrimPrefix(entityID, "./")
	return filepath.Join(cratePath, filepath.FromSlash(rel))
}
