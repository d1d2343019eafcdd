// Package models defines the persisted snapshot document.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/starford/rocache/internal/rocrate"
)

// ArtifactVersion is written into every artifact record.
const ArtifactVersion = "1.0"

// Snapshot is the full persisted state of all known crates.
type Snapshot struct {
	Version int           `json:"-"`
	Crates  []CrateRecord `json:"rocrates"`
}

// CrateRecord describes one crate directory at scan time.
type CrateRecord struct {
	ID     string `json:"uuid"`
	Path   string `json:"path"`
	Digest string `json:"metadata"`
	// Artifacts is nil for invalid crates.
	Artifacts []ArtifactRecord `json:"artifacts"`
	Valid     bool             `json:"valid"`
}

// ArtifactRecord is one entity extracted from a valid crate.
type ArtifactRecord struct {
	EntityID     string          `json:"id"`
	Name         string          `json:"name"`
	Type         rocrate.TypeTag `json:"type"`
	Description  string          `json:"description"`
	CratePath    string          `json:"path"`
	Pseudonym    string          `json:"pseudonym"`
	Version      string          `json:"version"`
	Fingerprint  string          `json:"metadata"`
	SymbolicLink *string         `json:"symbolic_link"`
}

// Empty returns the snapshot used when nothing has been persisted yet.
func Empty() *Snapshot {
	return &Snapshot{Version: 0, Crates: []CrateRecord{}}
}

// Next returns an empty snapshot whose version follows s.
func (s *Snapshot) Next() *Snapshot {
	return &Snapshot{Version: s.Version + 1, Crates: []CrateRecord{}}
}

// ByPath indexes the crates by directory path.
func (s *Snapshot) ByPath() map[string]*CrateRecord {
	out := make(map[string]*CrateRecord, len(s.Crates))
	for i := range s.Crates {
		out[s.Crates[i].Path] = &s.Crates[i]
	}
	return out
}

// Pseudonyms returns every pseudonym referenced by the snapshot.
func (s *Snapshot) Pseudonyms() map[string]struct{} {
	out := make(map[string]struct{})
	for _, c := range s.Crates {
		for _, a := range c.Artifacts {
			out[a.Pseudonym] = struct{}{}
		}
	}
	return out
}

// Artifact finds the artifact with the given pseudonym.
func (s *Snapshot) Artifact(pseudonym string) (*ArtifactRecord, bool) {
	for i := range s.Crates {
		for j := range s.Crates[i].Artifacts {
			if s.Crates[i].Artifacts[j].Pseudonym == pseudonym {
				return &s.Crates[i].Artifacts[j], true
			}
		}
	}
	return nil, false
}

type snapshotJSON struct {
	Version string        `json:"version"`
	Crates  []CrateRecord `json:"rocrates"`
}

// MarshalJSON writes the version as a decimal string.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	crates := s.Crates
	if crates == nil {
		crates = []CrateRecord{}
	}
	return json.Marshal(snapshotJSON{Version: strconv.Itoa(s.Version), Crates: crates})
}

// UnmarshalJSON accepts the version as a decimal string.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v := 0
	if raw.Version != "" {
		n, err := strconv.Atoi(raw.Version)
		if err != nil || n < 0 {
			return fmt.Errorf("snapshot: invalid version %q", raw.Version)
		}
		v = n
	}
	s.Version = v
	s.Crates = raw.Crates
	if s.Crates == nil {
		s.Crates = []CrateRecord{}
	}
	return nil
}
