package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chronicle-network/ledger-go/internal/core/record"
	"github.com/chronicle-network/ledger-go/internal/store"
	"github.com/chronicle-network/ledger-go/internal/util"

	"go.uber.org/zap"
)

// publishRequest is the normalized publish intake: the record field mapping
// plus zero or more attachment streams, already parsed out of whatever
// transport the upstream form layer used.
type publishRequest struct {
	Record      record.Fields       `json:"record"`
	Attachments []publishAttachment `json:"attachments"`
}

type publishAttachment struct {
	Filename  string `json:"filename"`
	MediaType string `json:"mediatype"`
	Encoding  string `json:"encoding"`
	Content   []byte `json:"content"` // base64 in transit
}

// PostPublication accepts a normalized record and commits it to the ledger.
// A novel record answers 201; identical content already on the ledger
// answers 200 with the same body shape. Both carry the canonical
// digest-addressed Location.
func (h *handlers) PostPublication(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return
	}
	if int64(len(body)) > h.maxBody {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "invalid_request", "body too large")
		return
	}

	var req publishRequest
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.Record == nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "record is required")
		return
	}

	uploads := make([]store.AttachmentUpload, len(req.Attachments))
	for i, att := range req.Attachments {
		uploads[i] = store.AttachmentUpload{
			Filename:  att.Filename,
			MediaType: att.MediaType,
			Encoding:  att.Encoding,
			Content:   bytes.NewReader(att.Content),
		}
	}

	result, err := h.ledger.Publish(r.Context(), req.Record, uploads)
	if err != nil {
		var malformed *record.MalformedError
		switch {
		case errors.As(err, &malformed):
			util.WriteError(w, http.StatusBadRequest, "invalid_record", malformed.Error())
		case errors.Is(err, store.ErrAttachmentTooLarge):
			util.WriteError(w, http.StatusRequestEntityTooLarge,
				"attachment_too_large", "attachment exceeds the size limit")
		default:
			zap.S().Errorw("publish failed", "error", err)
			util.WriteError(w, http.StatusInternalServerError, "internal", "failed to store record")
		}
		return
	}

	location := h.renderer.PublicationLocation(result.Digest.String())
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	w.Header().Set("Location", location)
	util.WriteJSON(w, status, map[string]any{
		"digest":    result.Digest.String(),
		"accession": result.Accession,
		"location":  location,
	})
}
