package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chronicle-network/ledger-go/internal/core/digest"
	"github.com/chronicle-network/ledger-go/internal/core/record"
	"github.com/chronicle-network/ledger-go/internal/core/signature"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publication is a stored record resolved from the ledger.
type Publication struct {
	Digest    digest.Digest
	Accession uint64
	Canonical []byte // canonical record bytes as hashed
	Signature []byte
	CreatedAt time.Time
}

// Fields decodes the canonical bytes back into the record field mapping.
// Normalize restores the typed shapes ([]string, map[string][]string) that
// generic JSON decoding flattens; stored records are already normalized, so
// this changes representation only.
func (p *Publication) Fields() (record.Fields, error) {
	var f record.Fields
	if err := json.Unmarshal(p.Canonical, &f); err != nil {
		return nil, fmt.Errorf("publication %s: decode record: %w", p.Digest, err)
	}
	record.Normalize(f)
	return f, nil
}

// PublishResult reports the outcome of a publish: the content digest, the
// accession number, and whether a new record was created (false means the
// identical content was already on the ledger).
type PublishResult struct {
	Digest    digest.Digest
	Accession uint64
	Created   bool
}

// Anchor receives digests of newly committed records for external
// timestamping. Submit must not block.
type Anchor interface {
	Submit(d digest.Digest)
}

// Ledger is the publication ledger contract consumed by the HTTP layer.
type Ledger interface {
	Publish(ctx context.Context, fields record.Fields, attachments []AttachmentUpload) (PublishResult, error)
	GetByDigest(ctx context.Context, d digest.Digest) (*Publication, error)
	GetByAccession(ctx context.Context, n uint64) (*Publication, error)
	ListFrom(from uint64, limit int) []Entry
	Count() uint64
}

// envelope is the per-record system metadata persisted next to the
// canonical record bytes.
type envelope struct {
	Digest    string    `json:"digest"`
	Signature string    `json:"signature"`
	CreatedAt time.Time `json:"created"`
}

// Directory names under the ledger root.
const (
	publicationsDir = "publications"
	tmpDir          = "tmp"
	accessionsFile  = "accessions"
	keyFile         = "key"

	recordFile   = "record.json"
	envelopeFile = "envelope.json"
)

// FSLedger implements Ledger on a plain directory tree: write-once record
// directories keyed by digest, an append-only accession index, and staging
// commits via rename so no partial write is ever visible.
type FSLedger struct {
	root        string
	seq         *Sequencer
	signer      *signature.Signer
	attachments *AttachmentStore
	proofs      *ProofStore
	anchor      Anchor
}

// OpenLedger opens (creating as needed) the ledger rooted at dir. The
// process signing key is loaded from, or generated into, the root. anchor
// may be nil to disable timestamp submission; it is also settable after
// open via SetAnchor since the anchor writes through the ledger's proof
// store.
func OpenLedger(dir string, maxAttachmentBytes int64, anchor Anchor) (*FSLedger, error) {
	pubs := filepath.Join(dir, publicationsDir)
	tmp := filepath.Join(dir, tmpDir)
	for _, d := range []string{dir, pubs, tmp} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create %s: %w", d, err)
		}
	}

	// staging entries left behind by a crash were never committed
	if entries, err := os.ReadDir(tmp); err == nil && len(entries) > 0 {
		for _, entry := range entries {
			os.RemoveAll(filepath.Join(tmp, entry.Name()))
		}
		zap.S().Infow("removed orphaned staging entries", "count", len(entries))
	}

	seq, err := OpenSequencer(filepath.Join(dir, accessionsFile))
	if err != nil {
		return nil, err
	}
	signer, err := signature.LoadOrGenerate(filepath.Join(dir, keyFile))
	if err != nil {
		seq.Close()
		return nil, err
	}

	return &FSLedger{
		root:        dir,
		seq:         seq,
		signer:      signer,
		attachments: NewAttachmentStore(pubs, maxAttachmentBytes),
		proofs:      NewProofStore(pubs, tmp),
		anchor:      anchor,
	}, nil
}

// SetAnchor installs the timestamp anchor notified of novel records. Call
// before serving publish traffic.
func (l *FSLedger) SetAnchor(a Anchor) { l.anchor = a }

// Signer exposes the process signer for the key endpoint.
func (l *FSLedger) Signer() *signature.Signer { return l.signer }

// Attachments exposes the attachment store for retrieval handlers.
func (l *FSLedger) Attachments() *AttachmentStore { return l.attachments }

// Proofs exposes the timestamp proof store.
func (l *FSLedger) Proofs() *ProofStore { return l.proofs }

// Publish canonicalizes fields, computes the content digest, and commits the
// record. Identical content publishes idempotently: the existing digest and
// accession number come back with Created false and no attachment, signing,
// or timestamping work is repeated.
//
// The durable write order is staging-then-commit: the record body and all
// attachments are assembled in a staging directory and synced, renamed into
// the content-addressed location (itself synced), and only then does the
// fsync'd accession append make the record visible. A failure at any earlier
// step leaves the ledger as if the publish never happened, and a crash at
// any point never yields an accession entry without its record content.
func (l *FSLedger) Publish(ctx context.Context, fields record.Fields, attachments []AttachmentUpload) (PublishResult, error) {
	record.Normalize(fields)
	canonical, err := record.CanonicalBytes(fields)
	if err != nil {
		return PublishResult{}, err
	}
	d := digest.Compute(canonical)

	if n, ok := l.seq.Lookup(d); ok {
		return PublishResult{Digest: d, Accession: n, Created: false}, nil
	}

	staging := filepath.Join(l.root, tmpDir, uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return PublishResult{}, fmt.Errorf("ledger: staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	if err := l.stageRecord(staging, d, canonical); err != nil {
		return PublishResult{}, err
	}
	for i, upload := range attachments {
		if err := ctx.Err(); err != nil {
			return PublishResult{}, err
		}
		if err := l.attachments.Stage(staging, i, upload); err != nil {
			return PublishResult{}, err
		}
	}

	// Every staged file and directory entry must reach the storage medium
	// before the accession append makes the record visible; a crash after
	// the append may not lose record content.
	if len(attachments) > 0 {
		if err := syncDir(filepath.Join(staging, attachmentsDir)); err != nil {
			return PublishResult{}, fmt.Errorf("ledger: sync staging: %w", err)
		}
	}
	if err := syncDir(staging); err != nil {
		return PublishResult{}, fmt.Errorf("ledger: sync staging: %w", err)
	}

	final := filepath.Join(l.root, publicationsDir, d.String())
	if err := os.Rename(staging, final); err != nil {
		// A concurrent publish of the same content may have renamed
		// first. The directory contents are identical by content
		// addressing, so losing the race is not a failure.
		if _, statErr := os.Stat(final); statErr != nil {
			return PublishResult{}, fmt.Errorf("ledger: commit record: %w", err)
		}
	}
	if err := syncDir(filepath.Join(l.root, publicationsDir)); err != nil {
		return PublishResult{}, fmt.Errorf("ledger: sync commit: %w", err)
	}

	n, created, err := l.seq.Assign(d)
	if err != nil {
		return PublishResult{}, err
	}
	if created && l.anchor != nil {
		l.anchor.Submit(d)
	}
	return PublishResult{Digest: d, Accession: n, Created: created}, nil
}

// stageRecord writes the canonical bytes and the signed envelope into the
// staging directory.
func (l *FSLedger) stageRecord(staging string, d digest.Digest, canonical []byte) error {
	if err := writeFileSync(filepath.Join(staging, recordFile), canonical, 0o644); err != nil {
		return fmt.Errorf("ledger: stage record: %w", err)
	}
	env := envelope{
		Digest:    d.String(),
		Signature: hex.EncodeToString(l.signer.Sign(d)),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("ledger: marshal envelope: %w", err)
	}
	if err := writeFileSync(filepath.Join(staging, envelopeFile), raw, 0o644); err != nil {
		return fmt.Errorf("ledger: stage envelope: %w", err)
	}
	return nil
}

// writeFileSync writes data to path and syncs it to the storage medium
// before returning.
func writeFileSync(path string, data []byte, perm os.FileMode) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = file.Write(data)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	return err
}

// syncDir flushes a directory's entry table to the storage medium.
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	err = dir.Sync()
	if closeErr := dir.Close(); err == nil {
		err = closeErr
	}
	return err
}

// GetByDigest returns the record stored under d. Records whose accession
// append has not committed are not visible.
func (l *FSLedger) GetByDigest(ctx context.Context, d digest.Digest) (*Publication, error) {
	n, ok := l.seq.Lookup(d)
	if !ok {
		return nil, ErrNotFound
	}
	return l.load(d, n)
}

// GetByAccession returns the record holding accession number n.
func (l *FSLedger) GetByAccession(ctx context.Context, n uint64) (*Publication, error) {
	d, err := l.seq.DigestAt(n)
	if err != nil {
		return nil, err
	}
	return l.load(d, n)
}

// ListFrom returns accession entries with numbers strictly greater than
// from, in increasing order.
func (l *FSLedger) ListFrom(from uint64, limit int) []Entry {
	return l.seq.ListFrom(from, limit)
}

// Count returns the number of records on the ledger.
func (l *FSLedger) Count() uint64 {
	return l.seq.Count()
}

// Close releases the accession index.
func (l *FSLedger) Close() error {
	return l.seq.Close()
}

func (l *FSLedger) load(d digest.Digest, n uint64) (*Publication, error) {
	dir := filepath.Join(l.root, publicationsDir, d.String())

	canonical, err := os.ReadFile(filepath.Join(dir, recordFile))
	if err != nil {
		return nil, fmt.Errorf("ledger: read record %s: %w", d, err)
	}
	rawEnv, err := os.ReadFile(filepath.Join(dir, envelopeFile))
	if err != nil {
		return nil, fmt.Errorf("ledger: read envelope %s: %w", d, err)
	}
	var env envelope
	if err := json.Unmarshal(rawEnv, &env); err != nil {
		return nil, fmt.Errorf("ledger: decode envelope %s: %w", d, err)
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil {
		return nil, fmt.Errorf("ledger: decode signature %s: %w", d, err)
	}

	return &Publication{
		Digest:    d,
		Accession: n,
		Canonical: canonical,
		Signature: sig,
		CreatedAt: env.CreatedAt,
	}, nil
}
