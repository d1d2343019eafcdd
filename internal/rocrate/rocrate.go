// Package rocrate reads ro-crate-metadata.json documents into normalised
// entity records.
package rocrate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MetadataFile is the marker file that makes a directory a crate root.
const MetadataFile = "ro-crate-metadata.json"

// ErrNoGraph is returned when the metadata document has no @graph array.
var ErrNoGraph = errors.New("rocrate: metadata has no @graph")

// Entity is one node of the crate's metadata graph. Fields the document does
// not provide are left empty.
type Entity struct {
	ID          string
	Type        TypeTag
	Name        string
	Description string
	// Properties holds every key except @id and @type.
	Properties map[string]any
}

// Crate is a parsed crate rooted at an absolute directory.
type Crate struct {
	Root     string
	RootID   string
	Entities []Entity
}

// ReadMetadata returns the raw metadata bytes of the crate in dir.
func ReadMetadata(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("rocrate: read metadata: %w", err)
	}
	return data, nil
}

// Load reads and parses the crate in dir.
func Load(dir string) (*Crate, error) {
	data, err := ReadMetadata(dir)
	if err != nil {
		return nil, err
	}
	return Parse(dir, data)
}

// Parse decodes a metadata document. root is the crate directory the entity
// ids are relative to.
func Parse(root string, data []byte) (*Crate, error) {
	var doc struct {
		Graph []map[string]json.RawMessage `json:"@graph"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("rocrate: decode metadata: %w", err)
	}
	if doc.Graph == nil {
		return nil, ErrNoGraph
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("rocrate: resolve root: %w", err)
	}

	c := &Crate{Root: abs, RootID: "./"}
	for _, node := range doc.Graph {
		e, ok, err := decodeEntity(node)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		c.Entities = append(c.Entities, e)
	}

	if desc := c.descriptor(); desc != nil {
		if about := refID(desc.Properties["about"]); about != "" {
			c.RootID = about
		}
	}
	return c, nil
}

func decodeEntity(node map[string]json.RawMessage) (Entity, bool, error) {
	var e Entity
	rawID, ok := node["@id"]
	if !ok {
		return e, false, nil
	}
	if err := json.Unmarshal(rawID, &e.ID); err != nil || e.ID == "" {
		return e, false, nil
	}
	if rawType, ok := node["@type"]; ok {
		if err := json.Unmarshal(rawType, &e.Type); err != nil {
			return e, false, fmt.Errorf("rocrate: entity %s: %w", e.ID, err)
		}
	}

	e.Properties = make(map[string]any, len(node))
	for k, raw := range node {
		if k == "@id" || k == "@type" {
			continue
		}
		var v any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return e, false, fmt.Errorf("rocrate: entity %s: property %s: %w", e.ID, k, err)
		}
		e.Properties[k] = v
	}
	e.Name = firstString(e.Properties["name"])
	e.Description = firstString(e.Properties["description"])
	return e, true, nil
}

// descriptor returns the metadata file descriptor entity, if present.
func (c *Crate) descriptor() *Entity {
	for i := range c.Entities {
		id := c.Entities[i].ID
		if id == MetadataFile || strings.HasSuffix(id, "/"+MetadataFile) {
			return &c.Entities[i]
		}
	}
	return nil
}

// Entity returns the entity with the given id.
func (c *Crate) Entity(id string) (Entity, bool) {
	for _, e := range c.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// DataEntities returns the File and Dataset entities of the crate, excluding
// the root dataset and the metadata descriptor, in document order.
func (c *Crate) DataEntities() []Entity {
	desc := c.descriptor()
	var out []Entity
	for _, e := range c.Entities {
		if e.ID == c.RootID || (desc != nil && e.ID == desc.ID) {
			continue
		}
		if e.Type.Has("File") || e.Type.Has("Dataset") {
			out = append(out, e)
		}
	}
	return out
}

// IsRemote reports whether id is an absolute URI rather than a path inside
// the crate.
func IsRemote(id string) bool {
	i := strings.Index(id, "://")
	return i > 0 && !strings.ContainsAny(id[:i], "/.")
}

// refID extracts the target of a {"@id": "..."} reference.
func refID(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["@id"].(string)
	return s
}

func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				return s
			}
		}
	}
	return ""
}
