package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// fingerprintLength is the number of hex characters kept from the digest.
// Short enough to stay readable in a filename, long enough that collisions
// between distinct URLs are negligible.
const fingerprintLength = 10

// URLFingerprint computes a short deterministic hex digest of a URL.
// It disambiguates downloaded files whose source URLs share a basename.
func URLFingerprint(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
