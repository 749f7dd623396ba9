package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/chronicle-network/ledger-go/internal/core/digest"
)

// AttachmentUpload is an inbound attachment stream with its declared
// metadata, handed to Publish by the intake layer.
type AttachmentUpload struct {
	Filename  string
	MediaType string
	Encoding  string
	Content   io.Reader
}

// AttachmentMeta describes a stored attachment. It is persisted as a JSON
// sidecar next to the attachment bytes.
type AttachmentMeta struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediatype"`
	Encoding  string `json:"encoding,omitempty"`
	Size      int64  `json:"size"`
}

// AttachmentStore persists attachment byte streams keyed by
// (record digest, positional index). Attachments are written into a
// record's staging directory before the record commits, so a partially
// written attachment is never retrievable.
type AttachmentStore struct {
	root     string // publications directory
	maxBytes int64
}

// NewAttachmentStore creates a store reading attachments from record
// directories under publicationsDir. maxBytes bounds each attachment;
// zero means unlimited.
func NewAttachmentStore(publicationsDir string, maxBytes int64) *AttachmentStore {
	return &AttachmentStore{root: publicationsDir, maxBytes: maxBytes}
}

const attachmentsDir = "attachments"

// Stage consumes the upload stream fully and writes the attachment bytes
// plus metadata sidecar at the given index inside dir, a record staging
// directory. Returns ErrAttachmentTooLarge when the stream exceeds the
// configured limit.
func (a *AttachmentStore) Stage(dir string, index int, upload AttachmentUpload) error {
	target := filepath.Join(dir, attachmentsDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("attachments: mkdir: %w", err)
	}

	path := filepath.Join(target, strconv.Itoa(index))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("attachments: create: %w", err)
	}
	reader := upload.Content
	if a.maxBytes > 0 {
		reader = io.LimitReader(reader, a.maxBytes+1)
	}
	size, err := io.Copy(file, reader)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("attachments: write: %w", err)
	}
	if a.maxBytes > 0 && size > a.maxBytes {
		return ErrAttachmentTooLarge
	}

	meta := AttachmentMeta{
		Filename:  upload.Filename,
		MediaType: upload.MediaType,
		Encoding:  upload.Encoding,
		Size:      size,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("attachments: marshal meta: %w", err)
	}
	if err := writeFileSync(path+".json", raw, 0o644); err != nil {
		return fmt.Errorf("attachments: write meta: %w", err)
	}
	return nil
}

// Get opens the attachment at (d, index). The caller closes the reader.
func (a *AttachmentStore) Get(d digest.Digest, index int) (io.ReadCloser, AttachmentMeta, error) {
	if index < 0 {
		return nil, AttachmentMeta{}, ErrNotFound
	}
	base := filepath.Join(a.root, d.String(), attachmentsDir, strconv.Itoa(index))

	rawMeta, err := os.ReadFile(base + ".json")
	if os.IsNotExist(err) {
		return nil, AttachmentMeta{}, ErrNotFound
	} else if err != nil {
		return nil, AttachmentMeta{}, fmt.Errorf("attachments: read meta: %w", err)
	}
	var meta AttachmentMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, AttachmentMeta{}, fmt.Errorf("attachments: decode meta: %w", err)
	}

	file, err := os.Open(base)
	if os.IsNotExist(err) {
		return nil, AttachmentMeta{}, ErrNotFound
	} else if err != nil {
		return nil, AttachmentMeta{}, fmt.Errorf("attachments: open: %w", err)
	}
	return file, meta, nil
}

// Count returns the number of attachments stored for d.
func (a *AttachmentStore) Count(d digest.Digest) int {
	entries, err := os.ReadDir(filepath.Join(a.root, d.String(), attachmentsDir))
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".json" {
			n++
		}
	}
	return n
}
