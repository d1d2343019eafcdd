// Package apperr holds the sentinel errors shared by the outer surfaces.
package apperr

import "errors"

// ErrNotFound is wrapped by lookups of unknown crates, pseudonyms or an
// absent snapshot.
var ErrNotFound = errors.New("not found")
