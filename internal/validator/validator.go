// Package validator classifies candidate crate directories as valid or
// invalid by delegating to an external checker.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPathNotFound is returned when the path handed to Validate is empty or
// does not exist. It is an input error, not a validation outcome.
var ErrPathNotFound = errors.New("validator: path not found")

// Verdict is the outcome of validating one crate.
type Verdict int

const (
	Invalid Verdict = iota
	Valid
)

func (v Verdict) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalid"
}

// Checker decides whether a single crate directory is valid.
type Checker interface {
	Check(ctx context.Context, path string) (Verdict, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, path string) (Verdict, error)

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, path string) (Verdict, error) {
	return f(ctx, path)
}

// Validator accumulates the valid and invalid paths seen since the last Reset.
type Validator struct {
	checker     Checker
	concurrency int
	logger      *slog.Logger

	mu      sync.Mutex
	valid   []string
	invalid []string
}

// Option configures a Validator.
type Option func(*Validator)

// WithConcurrency sets how many paths ValidateAll checks at once.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// New creates a Validator backed by checker.
func New(checker Checker, opts ...Option) *Validator {
	v := &Validator{
		checker:     checker,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks one path and records the verdict. A path the checker
// failed on is recorded as invalid; a missing path is not recorded.
func (v *Validator) Validate(ctx context.Context, path string) (Verdict, error) {
	verdict, err := v.check(ctx, path)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrPathNotFound) {
			v.record(path, Invalid)
		}
		return Invalid, err
	}
	v.record(path, verdict)
	return verdict, nil
}

func (v *Validator) check(ctx context.Context, path string) (Verdict, error) {
	if path == "" {
		return Invalid, fmt.Errorf("%w: empty path", ErrPathNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return Invalid, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	verdict, err := v.checker.Check(ctx, path)
	if err != nil {
		return Invalid, fmt.Errorf("validator: check %s: %w", path, err)
	}
	v.logger.Info("validator: checked", slog.String("path", path), slog.String("verdict", verdict.String()))
	return verdict, nil
}

func (v *Validator) record(path string, verdict Verdict) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if verdict == Valid {
		v.valid = append(v.valid, path)
	} else {
		v.invalid = append(v.invalid, path)
	}
}

// Result is the outcome of one path in a ValidateAll batch.
type Result struct {
	Path    string
	Verdict Verdict
	// Err is set when the path could not be checked; Verdict is then Invalid.
	// Missing paths are not recorded, checker failures count as invalid.
	Err error
}

// ValidateAll checks every path, up to the configured concurrency at a time,
// and records verdicts in input order. Per-path failures are reported in the
// results; only cancellation of ctx aborts the batch.
func (v *Validator) ValidateAll(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			verdict, err := v.check(gCtx, p)
			results[i] = Result{Path: p, Verdict: verdict, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, r := range results {
		if !errors.Is(r.Err, ErrPathNotFound) {
			v.record(r.Path, r.Verdict)
		}
	}
	return results, nil
}

// ValidPaths returns a copy of the paths judged valid.
func (v *Validator) ValidPaths() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.valid...)
}

// InvalidPaths returns a copy of the paths judged invalid.
func (v *Validator) InvalidPaths() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.invalid...)
}

// Reset forgets all recorded verdicts.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.valid = nil
	v.invalid = nil
}
