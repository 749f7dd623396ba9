package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chronicle-network/ledger-go/internal/core/digest"
	"github.com/chronicle-network/ledger-go/internal/store"
	"github.com/chronicle-network/ledger-go/internal/util"

	"go.uber.org/zap"
)

// GetPublication serves a single record as JSON or HTML per content
// negotiation. Unknown digests (including syntactically invalid ones) are
// indistinguishable: both answer 404.
func (h *handlers) GetPublication(w http.ResponseWriter, r *http.Request) {
	d, err := digest.Parse(chi.URLParam(r, "digest"))
	if err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such publication")
		return
	}

	representation := util.Negotiate(r, "application/json", "text/html")
	if representation == "" {
		util.WriteError(w, http.StatusUnsupportedMediaType,
			"unsupported_representation", "publications render as application/json or text/html")
		return
	}

	p, err := h.ledger.GetByDigest(r.Context(), d)
	if errors.Is(err, store.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such publication")
		return
	} else if err != nil {
		zap.S().Errorw("publication read failed", "digest", d.String(), "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to load publication")
		return
	}

	var body []byte
	switch representation {
	case "application/json":
		body, err = h.renderer.PublicationJSON(p)
	case "text/html":
		body, err = h.renderer.PublicationHTML(p, h.attachments.Count(d))
	}
	if err != nil {
		zap.S().Errorw("publication render failed", "digest", d.String(), "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to render publication")
		return
	}
	w.Header().Set("Content-Type", representation+"; charset=utf-8")
	w.Write(body)
}

// GetAttachment streams attachment bytes with their declared media type.
func (h *handlers) GetAttachment(w http.ResponseWriter, r *http.Request) {
	d, err := digest.Parse(chi.URLParam(r, "digest"))
	if err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such attachment")
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such attachment")
		return
	}

	// Only committed records expose attachments.
	if _, err := h.ledger.GetByDigest(r.Context(), d); err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such attachment")
		return
	}

	reader, meta, err := h.attachments.Get(d, index)
	if errors.Is(err, store.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such attachment")
		return
	} else if err != nil {
		zap.S().Errorw("attachment read failed",
			"digest", d.String(), "index", index, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to load attachment")
		return
	}
	defer reader.Close()

	mediaType := meta.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if meta.Filename != "" {
		w.Header().Set("Content-Disposition",
			mime.FormatMediaType("inline", map[string]string{"filename": meta.Filename}))
	}
	io.Copy(w, reader)
}

// ListTimestamps answers the proof keys recorded for a digest. A committed
// record with no proofs yet lists empty rather than 404.
func (h *handlers) ListTimestamps(w http.ResponseWriter, r *http.Request) {
	d, err := digest.Parse(chi.URLParam(r, "digest"))
	if err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such publication")
		return
	}
	if _, err := h.ledger.GetByDigest(r.Context(), d); err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such publication")
		return
	}

	proofs, err := h.proofs.List(d)
	if err != nil {
		zap.S().Errorw("timestamp list failed", "digest", d.String(), "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to list timestamps")
		return
	}

	type proofInfo struct {
		Key     string    `json:"key"`
		Created time.Time `json:"created"`
	}
	infos := make([]proofInfo, len(proofs))
	for i, proof := range proofs {
		infos[i] = proofInfo{Key: proof.Key, Created: proof.CreatedAt}
	}
	util.WriteJSON(w, http.StatusOK, map[string]any{"timestamps": infos})
}

// GetTimestamp serves one stored proof verbatim.
func (h *handlers) GetTimestamp(w http.ResponseWriter, r *http.Request) {
	d, err := digest.Parse(chi.URLParam(r, "digest"))
	if err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such timestamp")
		return
	}

	proof, err := h.proofs.Get(d, chi.URLParam(r, "key"))
	if errors.Is(err, store.ErrNotFound) {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such timestamp")
		return
	} else if err != nil {
		zap.S().Errorw("timestamp read failed", "digest", d.String(), "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to load timestamp")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(proof.Data)
}
