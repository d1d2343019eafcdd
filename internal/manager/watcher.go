package manager

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/rocache/internal/models"
	"github.com/starford/rocache/internal/rocrate"
	"github.com/starford/rocache/internal/scanner"
)

// DefaultDebounce is the quiet period Watch waits for before updating.
const DefaultDebounce = 500 * time.Millisecond

// WatchFunc receives the outcome of every watcher-driven update.
type WatchFunc func(s *models.Snapshot, r *Report, err error)

// Watch starts an fsnotify watcher on the scan root and runs Update after
// crate metadata changes, until ctx is cancelled. Bursts of events are
// collapsed into one update once debounce has passed without new events.
//
// New directories created at runtime are automatically added to the watch
// list. Removals and renames always schedule an update since the removed
// path may have been a crate.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration, cb WatchFunc) error {
	if m.root == "" {
		return ErrNoScanRoot
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root, err := scanner.ResolveRoot(m.root)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := m.addDirsRecursive(w, root, root); err != nil {
		return err
	}

	m.logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			m.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			timer, timerCh = nil, nil
			s, r, err := m.Update(ctx)
			if err != nil {
				m.logger.Warn("watcher: update failed", slog.String("error", err.Error()))
			}
			if cb != nil {
				cb(s, r, err)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if m.relevant(w, root, ev) {
				m.logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant reports whether ev may change the set of crates or their metadata.
func (m *Manager) relevant(w *fsnotify.Watcher, root string, ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		return true
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
			if m.isIgnored(root, ev.Name) {
				return false
			}
			if addErr := m.addDirsRecursive(w, root, ev.Name); addErr != nil {
				m.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", addErr.Error()))
			} else {
				m.logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
			}
			return true
		}
	}
	return filepath.Base(ev.Name) == rocrate.MetadataFile && ev.Op&(fsnotify.Create|fsnotify.Write) != 0
}

func (m *Manager) isIgnored(root, p string) bool {
	patterns := m.ignore
	if patterns == nil {
		patterns = scanner.DefaultIgnore
	}
	return p != root && scanner.Ignored(root, p, patterns)
}

// addDirsRecursive adds dir and all its non-ignored subdirectories to the
// watcher.
func (m *Manager) addDirsRecursive(w *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if m.isIgnored(root, path) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}
