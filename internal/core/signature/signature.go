// Package signature holds the process keypair and signs stored digests.
// The private key lives for the process lifetime; only the public half is
// ever exposed to callers.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/chronicle-network/ledger-go/internal/core/digest"
)

// PublicKeySize is the exposed public key length in bytes.
const PublicKeySize = ed25519.PublicKeySize

// Signer signs digests with a long-lived ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
}

// LoadOrGenerate reads a 32-byte ed25519 seed from path, generating and
// persisting a fresh one (mode 0600) when the file does not exist.
func LoadOrGenerate(path string) (*Signer, error) {
	seed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("signature: generate seed: %w", err)
		}
		if err := os.WriteFile(path, seed, 0o600); err != nil {
			return nil, fmt.Errorf("signature: persist seed: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("signature: read seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signature: seed file %s: expected %d bytes, got %d",
			path, ed25519.SeedSize, len(seed))
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign returns the 64-byte ed25519 signature over the digest bytes.
func (s *Signer) Sign(d digest.Digest) []byte {
	return ed25519.Sign(s.priv, d[:])
}

// PublicKey returns the 32-byte public key.
func (s *Signer) PublicKey() []byte {
	return s.priv.Public().(ed25519.PublicKey)
}

// PublicKeyHex returns the public key in lowercase hex, the form served at
// the key endpoint.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.PublicKey())
}

// Verify reports whether sig is a valid signature over d by the holder of
// pub. Third parties verify published records with this same check.
func Verify(pub []byte, d digest.Digest, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), d[:], sig)
}
