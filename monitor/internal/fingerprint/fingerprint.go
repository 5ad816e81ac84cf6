// Package fingerprint derives the change-detection digest of normalized
// page text.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Of returns the lowercase hex SHA-256 of the UTF-8 bytes of text.
func Of(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Valid reports whether s has the shape of a fingerprint.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
