// Package digest computes the fixed-length content identifier for canonical
// record bytes. All identity and deduplication decisions in the ledger flow
// through this package; the algorithm is confined here so it can change
// without touching callers.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes. HexLen is its lowercase hex form.
const (
	Size   = sha256.Size
	HexLen = 2 * Size
)

// Digest is a SHA-256 content identifier.
type Digest [Size]byte

// Compute returns the digest of canonical record bytes.
func Compute(canonical []byte) Digest {
	return Digest(sha256.Sum256(canonical))
}

// Parse decodes a 64-character lowercase hex digest.
func Parse(s string) (Digest, error) {
	var d Digest
	if len(s) != HexLen {
		return d, fmt.Errorf("digest: expected %d hex characters, got %d", HexLen, len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return d, fmt.Errorf("digest: invalid character %q", c)
		}
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("digest: %w", err)
	}
	return d, nil
}

// String returns the lowercase hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
