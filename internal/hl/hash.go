package hl

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the SHA-256 checksum of text as a lowercase hex string.
// It is used purely as an equality oracle: two reads of a file compare equal
// iff their hashes compare equal, so reconciliation can skip relocation when
// nothing changed.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
