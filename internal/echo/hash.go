package echo

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// emptyContentHash is the sentinel grouping key for samples whose text
// normalizes to nothing. Patterns built on it are degenerate: they still
// indicate a producer stuck emitting blanks, but carry no content.
const emptyContentHash = "empty"

// ContentHash returns the deterministic grouping key for a sample's text:
// lowercase, whitespace-collapsed, SHA-256 hex. The digest is used only
// as an exact-match bucket key; collision tolerance is acceptable here.
func ContentHash(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if normalized == "" {
		return emptyContentHash
	}
	h := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(h[:])
}

// IsDegenerateHash reports whether a content hash is the empty-text
// sentinel.
func IsDegenerateHash(hash string) bool {
	return hash == emptyContentHash
}
