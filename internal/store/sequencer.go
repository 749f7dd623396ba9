package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/chronicle-network/ledger-go/internal/core/digest"

	"go.uber.org/zap"
)

// Entry is one row of the accession index: a sequence number and the digest
// it was assigned to.
type Entry struct {
	Number uint64
	Digest digest.Digest
}

// Sequencer assigns strictly increasing accession numbers to novel digests
// and keeps the assignment durable in an append-only file: one lowercase hex
// digest per line, where line N holds accession number N.
//
// Assignment is the ledger's single mutual-exclusion point. The in-memory
// index and the file append happen inside one critical section, so
// concurrent callers observe a gap-free prefix 1..N with every number handed
// out exactly once.
type Sequencer struct {
	mu       sync.Mutex
	file     *os.File
	size     int64 // committed bytes in the index file
	order    []digest.Digest
	byDigest map[digest.Digest]uint64
}

// lineLen is a digest line including its newline.
const lineLen = digest.HexLen + 1

// OpenSequencer loads the accession index at path, creating it if absent.
// A torn final line (a crash mid-append) is truncated away: an entry whose
// write never completed was never acknowledged to any caller.
func OpenSequencer(path string) (*Sequencer, error) {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("sequencer: read index: %w", err)
	}

	s := &Sequencer{byDigest: make(map[digest.Digest]uint64)}
	valid := 0
	for valid+lineLen <= len(raw) && raw[valid+lineLen-1] == '\n' {
		d, err := digest.Parse(string(raw[valid : valid+digest.HexLen]))
		if err != nil {
			return nil, fmt.Errorf("sequencer: index line %d: %w", len(s.order)+1, err)
		}
		s.order = append(s.order, d)
		s.byDigest[d] = uint64(len(s.order))
		valid += lineLen
	}
	if valid < len(raw) {
		zap.S().Warnw("truncating torn accession index tail",
			"path", path, "valid_bytes", valid, "file_bytes", len(raw))
		if err := os.Truncate(path, int64(valid)); err != nil {
			return nil, fmt.Errorf("sequencer: truncate torn tail: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sequencer: open index: %w", err)
	}
	s.file = file
	s.size = int64(valid)
	return s, nil
}

// Assign returns the accession number for d, appending a new entry when the
// digest is novel. The entry is synced to the storage medium before Assign
// returns, so a crash after return cannot lose it. The second return value
// reports whether a new entry was created.
func (s *Sequencer) Assign(d digest.Digest) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.byDigest[d]; ok {
		return n, false, nil
	}

	line := d.String() + "\n"
	if _, err := s.file.WriteString(line); err != nil {
		// roll back a partial append so later entries land on a clean tail
		if truncErr := s.file.Truncate(s.size); truncErr != nil {
			zap.S().Errorw("accession index tail rollback failed",
				"error", truncErr, "committed_bytes", s.size)
		}
		return 0, false, fmt.Errorf("sequencer: append: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		if truncErr := s.file.Truncate(s.size); truncErr != nil {
			zap.S().Errorw("accession index tail rollback failed",
				"error", truncErr, "committed_bytes", s.size)
		}
		return 0, false, fmt.Errorf("sequencer: sync: %w", err)
	}
	s.size += int64(len(line))

	s.order = append(s.order, d)
	n := uint64(len(s.order))
	s.byDigest[d] = n
	return n, true, nil
}

// Lookup returns the accession number assigned to d, if any.
func (s *Sequencer) Lookup(d digest.Digest) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byDigest[d]
	return n, ok
}

// DigestAt returns the digest holding accession number n. Numbers outside
// [1, Count] yield ErrNotFound.
func (s *Sequencer) DigestAt(n uint64) (digest.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 1 || n > uint64(len(s.order)) {
		return digest.Digest{}, ErrNotFound
	}
	return s.order[n-1], nil
}

// ListFrom returns up to limit entries with accession numbers strictly
// greater than from, in increasing order. The result is a consistent
// snapshot: it never omits a lower-numbered entry while including a higher
// one. limit <= 0 means no limit.
func (s *Sequencer) ListFrom(from uint64, limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from >= uint64(len(s.order)) {
		return nil
	}
	rest := s.order[from:]
	if limit > 0 && limit < len(rest) {
		rest = rest[:limit]
	}
	entries := make([]Entry, len(rest))
	for i, d := range rest {
		entries[i] = Entry{Number: from + uint64(i) + 1, Digest: d}
	}
	return entries
}

// Count returns the number of assigned accession numbers.
func (s *Sequencer) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.order))
}

// Close releases the index file handle.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
