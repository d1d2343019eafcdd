// Package scanner finds crate directories under a root.
package scanner

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/rocache/internal/rocrate"
)

// DefaultIgnore lists directory patterns that are never descended into.
var DefaultIgnore = []string{
	"**/.git",
	"**/node_modules",
	"**/__pycache__",
}

type options struct {
	ignore []string
	logger *slog.Logger
}

// Option configures Scan.
type Option func(*options)

// WithIgnore replaces the ignore patterns. Patterns are doublestar globs
// matched against slash-separated paths relative to the root.
func WithIgnore(patterns ...string) Option {
	return func(o *options) {
		o.ignore = patterns
	}
}

// WithLogger sets the logger used to report skipped subtrees.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Scan walks root and returns the absolute path of every directory that
// directly contains the crate marker file, in lexical walk order. An empty
// or missing root yields no paths. Unreadable subtrees are skipped.
func Scan(root string, opts ...Option) []string {
	o := options{ignore: DefaultIgnore, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	paths := []string{}
	if root == "" {
		return paths
	}
	abs, err := ResolveRoot(root)
	if err != nil {
		o.logger.Debug("scan: resolve root failed", slog.String("root", root), slog.String("error", err.Error()))
		return paths
	}

	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == abs {
				o.logger.Debug("scan: root unreadable", slog.String("root", abs), slog.String("error", walkErr.Error()))
				return fs.SkipAll
			}
			o.logger.Debug("scan: skipping unreadable path", slog.String("path", p), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != abs && Ignored(abs, p, o.ignore) {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() == rocrate.MetadataFile && d.Type().IsRegular() {
			dir := filepath.Dir(p)
			o.logger.Debug("scan: crate detected", slog.String("path", dir))
			paths = append(paths, dir)
		}
		return nil
	})
	return paths
}

// ResolveRoot returns the absolute path of root with symbolic links
// resolved. Only the root itself is followed; links below it are not.
func ResolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// Ignored reports whether p, a path under root, matches one of patterns.
func Ignored(root, p string, patterns []string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
	}
	return false
}
