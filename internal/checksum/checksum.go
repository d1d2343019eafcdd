// Package checksum computes the content hashes used for change detection.
// None of these are meant for security.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// File returns the hex-encoded SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checksum: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint returns a BLAKE3 digest of a property bag. Map keys are
// serialised in sorted order at every nesting level, so two bags with the
// same content hash the same regardless of insertion order.
func Fingerprint(props map[string]any) (string, error) {
	if props == nil {
		props = map[string]any{}
	}
	canonical, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("checksum: encode properties: %w", err)
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
