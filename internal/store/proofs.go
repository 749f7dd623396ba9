package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/chronicle-network/ledger-go/internal/core/digest"

	"github.com/google/uuid"
)

// Proof is externally produced evidence that a digest existed at or before
// a point in time, keyed by the anchor that produced it.
type Proof struct {
	Key       string
	Data      []byte
	CreatedAt time.Time
}

// ProofStore owns timestamp proofs, kept per record under
// publications/<digest>/timestamps/<key>. The set of proofs for a digest is
// append-only; individual proofs never change once written.
type ProofStore struct {
	root string // publications directory
	tmp  string // staging directory for atomic writes
}

// NewProofStore creates a proof store over publicationsDir, staging writes
// in tmpDir before renaming them into place.
func NewProofStore(publicationsDir, tmpDir string) *ProofStore {
	return &ProofStore{root: publicationsDir, tmp: tmpDir}
}

const timestampsDir = "timestamps"

// validProofKey rejects keys that could escape the timestamps directory.
func validProofKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	for _, c := range key {
		if c == '/' || c == '\\' || c == 0 {
			return false
		}
	}
	return true
}

// Put stores proof bytes for d under key. An existing proof under the same
// key is left untouched: proofs upgrade by arriving under new keys, never by
// overwriting.
func (p *ProofStore) Put(d digest.Digest, key string, data []byte) error {
	if !validProofKey(key) {
		return fmt.Errorf("proofs: invalid key %q", key)
	}
	dir := filepath.Join(p.root, d.String(), timestampsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("proofs: mkdir: %w", err)
	}
	target := filepath.Join(dir, key)
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	staged := filepath.Join(p.tmp, uuid.NewString())
	if err := os.WriteFile(staged, data, 0o644); err != nil {
		return fmt.Errorf("proofs: stage: %w", err)
	}
	if err := os.Rename(staged, target); err != nil {
		os.Remove(staged)
		return fmt.Errorf("proofs: commit: %w", err)
	}
	return nil
}

// Get returns the proof stored for d under key.
func (p *ProofStore) Get(d digest.Digest, key string) (Proof, error) {
	if !validProofKey(key) {
		return Proof{}, ErrNotFound
	}
	path := filepath.Join(p.root, d.String(), timestampsDir, key)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Proof{}, ErrNotFound
	} else if err != nil {
		return Proof{}, fmt.Errorf("proofs: stat: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Proof{}, fmt.Errorf("proofs: read: %w", err)
	}
	return Proof{Key: key, Data: data, CreatedAt: info.ModTime().UTC()}, nil
}

// List returns all proofs for d ordered by key. A digest with no proofs
// yields an empty slice, not an error.
func (p *ProofStore) List(d digest.Digest) ([]Proof, error) {
	dir := filepath.Join(p.root, d.String(), timestampsDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("proofs: list: %w", err)
	}

	proofs := make([]Proof, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		proof, err := p.Get(d, entry.Name())
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, proof)
	}
	sort.Slice(proofs, func(i, j int) bool { return proofs[i].Key < proofs[j].Key })
	return proofs, nil
}
