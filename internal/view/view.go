// Package view renders ledger contents as JSON, HTML, CSV, or RSS. Every
// renderer is a pure mapping from already-resolved ledger data to bytes;
// nothing here performs I/O, so each representation is independently
// testable.
package view

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chronicle-network/ledger-go/internal/store"
)

// Renderer formats ledger data against the service base URL.
type Renderer struct {
	base string
}

// NewRenderer creates a Renderer. base is the externally visible service
// URL; a trailing slash is ensured.
func NewRenderer(base string) *Renderer {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &Renderer{base: base}
}

// PublicationLocation returns the canonical digest-addressed URL for a
// record.
func (r *Renderer) PublicationLocation(digestHex string) string {
	return r.base + "publications/" + digestHex
}

// AccessionLocation returns the redirecting accession URL for a record.
func (r *Renderer) AccessionLocation(number uint64) string {
	return r.base + "accessions/" + strconv.FormatUint(number, 10)
}

// AttachmentLocation returns the URL of a record attachment by position.
func (r *Renderer) AttachmentLocation(digestHex string, index int) string {
	return r.PublicationLocation(digestHex) + "/attachments/" + strconv.Itoa(index)
}

// PublicationJSON renders a single record as JSON: the record fields as
// stored, plus the system fields (digest, signature, timestamp, accession).
func (r *Renderer) PublicationJSON(p *store.Publication) ([]byte, error) {
	body := struct {
		Digest    string          `json:"digest"`
		Accession uint64          `json:"accession"`
		Record    json.RawMessage `json:"record"`
		Signature string          `json:"signature"`
		CreatedAt time.Time       `json:"created"`
		Location  string          `json:"location"`
	}{
		Digest:    p.Digest.String(),
		Accession: p.Accession,
		Record:    json.RawMessage(p.Canonical),
		Signature: hex.EncodeToString(p.Signature),
		CreatedAt: p.CreatedAt,
		Location:  r.PublicationLocation(p.Digest.String()),
	}
	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("view: publication json: %w", err)
	}
	return append(out, '\n'), nil
}

// AccessionsCSV renders accession entries in increasing accession order,
// one "number,digest" row per record.
func (r *Renderer) AccessionsCSV(entries []store.Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, entry := range entries {
		row := []string{
			strconv.FormatUint(entry.Number, 10),
			entry.Digest.String(),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("view: accessions csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("view: accessions csv: %w", err)
	}
	return buf.Bytes(), nil
}
