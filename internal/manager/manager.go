// Package manager reconciles the crates found on disk with the persisted
// snapshot and keeps the link directory in step with it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/rocache/internal/artifact"
	"github.com/starford/rocache/internal/checksum"
	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/rocrate"
	"github.com/starford/rocache/internal/scanner"
	"github.com/starford/rocache/internal/storage"
	"github.com/starford/rocache/internal/validator"
)

var (
	// ErrNoScanRoot is returned when no scan root is configured.
	ErrNoScanRoot = errors.New("manager: scan root not configured")
	// ErrScanRoot is returned when the scan root is not a readable directory.
	ErrScanRoot = errors.New("manager: scan root unavailable")
)

// Recorder observes completed update cycles.
type Recorder interface {
	ObserveUpdate(s *models.Snapshot, r *Report)
}

// UpdateFunc is called after every update cycle whose snapshot was saved.
type UpdateFunc func(s *models.Snapshot, r *Report)

// Manager runs update cycles. Update calls are serialised.
type Manager struct {
	root      string
	store     storage.Provider
	validator *validator.Validator
	logger    *slog.Logger
	ignore    []string
	recorder  Recorder
	onUpdate  UpdateFunc
	newID     func() string

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithIgnore sets the scanner ignore patterns. Without it the scanner
// defaults apply.
func WithIgnore(patterns []string) Option {
	return func(m *Manager) { m.ignore = patterns }
}

// WithRecorder sets a Recorder that sees every cycle.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithOnUpdate sets a callback run after each saved cycle.
func WithOnUpdate(fn UpdateFunc) Option {
	return func(m *Manager) { m.onUpdate = fn }
}

// New creates a Manager scanning root.
func New(root string, store storage.Provider, v *validator.Validator, opts ...Option) *Manager {
	m := &Manager{
		root:      root,
		store:     store,
		validator: v,
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the scan root.
func (m *Manager) Root() string { return m.root }

// Entry is the action taken for one crate path.
type Entry struct {
	Path   string
	Action Action
}

// Report summarises one update cycle.
type Report struct {
	Version  int
	Entries  []Entry
	Links    artifact.Stats
	Pruned   []string
	Duration time.Duration
}

// Count returns the number of entries with action a.
func (r *Report) Count(a Action) int {
	n := 0
	for _, e := range r.Entries {
		if e.Action == a {
			n++
		}
	}
	return n
}

// Changed reports whether the cycle altered any record or link.
func (r *Report) Changed() bool {
	return len(r.Entries) != r.Count(ActionKeep) || r.Links.Mutations() > 0 || len(r.Pruned) > 0
}

type plan struct {
	path   string
	digest string
	action Action
	prev   *models.CrateRecord
}

// Update runs one full cycle: scan, validate, reconcile against the previous
// snapshot, save the new snapshot and prune links it no longer references.
// Per-crate problems are logged and degrade that crate's record. A save
// failure is returned together with the unsaved snapshot.
func (m *Manager) Update(ctx context.Context) (*models.Snapshot, *Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	if m.root == "" {
		return nil, nil, ErrNoScanRoot
	}
	if info, err := os.Stat(m.root); err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrScanRoot, m.root)
	}

	scanOpts := []scanner.Option{scanner.WithLogger(m.logger)}
	if m.ignore != nil {
		scanOpts = append(scanOpts, scanner.WithIgnore(m.ignore...))
	}
	paths := scanner.Scan(m.root, scanOpts...)

	m.validator.Reset()
	results, err := m.validator.ValidateAll(ctx, paths)
	if err != nil {
		return nil, nil, fmt.Errorf("manager: validate: %w", err)
	}

	prev := m.load()
	next := prev.Next()
	prevByPath := prev.ByPath()

	plans := make([]plan, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if errors.Is(r.Err, validator.ErrPathNotFound) {
			m.logger.Warn("manager: crate vanished", slog.String("path", r.Path))
			continue
		}
		if r.Err != nil {
			m.logger.Warn("manager: validation failed",
				slog.String("path", r.Path),
				slog.String("error", r.Err.Error()))
		}
		valid := r.Err == nil && r.Verdict == validator.Valid
		digest := m.digest(r.Path)
		p := prevByPath[r.Path]
		plans = append(plans, plan{path: r.Path, digest: digest, action: Decide(p, valid, digest), prev: p})
		seen[r.Path] = struct{}{}
	}

	linker := artifact.NewLinker(m.store, m.logger)
	records := make([]models.CrateRecord, len(plans))

	// Kept crates claim their pseudonyms before anything new is extracted.
	for i, p := range plans {
		if p.action != ActionKeep {
			continue
		}
		rec := *p.prev
		rec.Artifacts = linker.Retain(p.prev.Artifacts)
		records[i] = rec
	}

	report := &Report{Version: next.Version}
	for i, p := range plans {
		switch p.action {
		case ActionKeep:
		case ActionInsertValid, ActionReextract:
			records[i] = m.buildValid(linker, p.path, p.digest)
		default:
			records[i] = models.CrateRecord{ID: m.newID(), Path: p.path, Digest: p.digest}
		}
		report.Entries = append(report.Entries, Entry{Path: p.path, Action: p.action})
		m.logger.Debug("manager: crate", slog.String("path", p.path), slog.String("action", p.action.String()))
	}
	for _, c := range prev.Crates {
		if _, ok := seen[c.Path]; !ok {
			report.Entries = append(report.Entries, Entry{Path: c.Path, Action: ActionDrop})
			m.logger.Info("manager: crate dropped", slog.String("path", c.Path))
		}
	}
	next.Crates = records

	var saveErr error
	if err := m.store.Save(next); err != nil {
		m.logger.Error("manager: save snapshot failed", slog.String("error", err.Error()))
		saveErr = fmt.Errorf("manager: save snapshot: %w", err)
	} else {
		pruned, err := m.store.Prune(next.Pseudonyms())
		if err != nil {
			m.logger.Warn("manager: prune links failed", slog.String("error", err.Error()))
		}
		report.Pruned = pruned
	}

	report.Links = linker.Stats()
	report.Duration = time.Since(start)

	m.logger.Info("manager: update complete",
		slog.Int("version", next.Version),
		slog.Int("crates", len(next.Crates)),
		slog.Int("links_created", report.Links.Created),
		slog.Int("links_replaced", report.Links.Replaced),
		slog.Int("links_pruned", len(report.Pruned)),
		slog.Duration("duration", report.Duration))

	if m.recorder != nil {
		m.recorder.ObserveUpdate(next, report)
	}
	if saveErr == nil && m.onUpdate != nil {
		m.onUpdate(next, report)
	}
	return next, report, saveErr
}

func (m *Manager) load() *models.Snapshot {
	s, err := m.store.Load()
	switch {
	case err == nil:
		return s
	case errors.Is(err, storage.ErrNoSnapshot):
		return models.Empty()
	default:
		m.logger.Warn("manager: load snapshot failed, starting empty", slog.String("error", err.Error()))
		return models.Empty()
	}
}

func (m *Manager) digest(path string) string {
	sum, err := checksum.File(filepath.Join(path, rocrate.MetadataFile))
	if err != nil {
		m.logger.Warn("manager: digest failed", slog.String("path", path), slog.String("error", err.Error()))
		return ""
	}
	return sum
}

func (m *Manager) buildValid(linker *artifact.Linker, path, digest string) models.CrateRecord {
	rec := models.CrateRecord{
		ID:        m.newID(),
		Path:      path,
		Digest:    digest,
		Valid:     true,
		Artifacts: []models.ArtifactRecord{},
	}
	crate, err := rocrate.Load(path)
	if err != nil {
		m.logger.Warn("manager: load crate failed", slog.String("path", path), slog.String("error", err.Error()))
		return rec
	}
	rec.Artifacts = linker.Extract(crate)
	return rec
}
