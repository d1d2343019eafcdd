// Package pseudonym derives short, filesystem-safe names for crate entities.
package pseudonym

import (
	"slices"
	"strconv"
	"strings"
)

// Kind is the artifact category derived from an entity's @type.
type Kind int

const (
	Unknown Kind = iota
	File
	Dataset
	Script
	Workflow
)

func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Dataset:
		return "dataset"
	case Script:
		return "script"
	case Workflow:
		return "workflow"
	default:
		return "unknown"
	}
}

// UnknownExt stands in for the extension of ids that have none.
const UnknownExt = ".unknown"

// fallback is used when sanitising leaves nothing behind.
const fallback = "artifact"

const maxDescription = 20

var signatures = []struct {
	kind  Kind
	types []string
}{
	{File, []string{"File"}},
	{Dataset, []string{"Dataset"}},
	{Script, []string{"File", "SoftwareSourceCode"}},
	{Workflow, []string{"File", "SoftwareSourceCode", "ComputationalWorkflow"}},
}

// Classify maps an entity's ordered type list to a Kind. Only exact matches
// count; a list with extra or reordered entries is Unknown.
func Classify(types []string) Kind {
	for _, sig := range signatures {
		if slices.Equal(types, sig.types) {
			return sig.kind
		}
	}
	return Unknown
}

// Generate returns the pseudonym for an entity. The result depends only on
// its arguments.
func Generate(id string, types []string, description string) string {
	id = strings.TrimRight(strings.TrimPrefix(id, "./"), "/")
	stem, ext := splitExt(id)

	var name string
	switch Classify(types) {
	case File:
		name = stem + "_file" + ext
	case Script:
		name = stem + "_script" + ext
	case Dataset:
		name = stem
	default:
		if d := normaliseDescription(description); d != "" {
			name = stem + "_" + d
		} else {
			name = id
		}
	}
	return Sanitise(name)
}

// splitExt splits id at the last dot of its final path element. The
// extension keeps its leading dot.
func splitExt(id string) (stem, ext string) {
	base := id
	if i := strings.LastIndexAny(id, `/\`); i >= 0 {
		base = id[i+1:]
	}
	dot := strings.LastIndex(base, ".")
	if dot <= 0 {
		return id, UnknownExt
	}
	cut := len(id) - len(base) + dot
	return id[:cut], id[cut:]
}

func normaliseDescription(desc string) string {
	desc = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(desc)), " ", "_")
	if r := []rune(desc); len(r) > maxDescription {
		desc = string(r[:maxDescription])
	}
	return desc
}

// Sanitise makes name safe to use as a single path element: separators
// become underscores and anything outside [A-Za-z0-9._-] is dropped.
func Sanitise(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return fallback
	}
	return out
}

// Disambiguate returns the n-th alternative for a taken pseudonym by inserting
// "-n" before its extension.
func Disambiguate(name string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	if dot := strings.LastIndex(name, "."); dot > 0 {
		return name[:dot] + suffix + name[dot:]
	}
	return name + suffix
}
