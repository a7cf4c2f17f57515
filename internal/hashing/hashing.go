// Package hashing provides the content hash used for change detection on
// documents and chunks.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the lowercase hex SHA-256 digest of text. The digest is
// stable across processes and platforms so stored hashes stay comparable.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
