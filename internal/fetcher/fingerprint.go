package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint computes a stable SHA-256 hex digest of a fetched document.
// Used as the cheap change-detection gate before any parsing happens.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
