package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chronicle-network/ledger-go/internal/store"
	"github.com/chronicle-network/ledger-go/internal/util"
	"github.com/chronicle-network/ledger-go/internal/view"

	"go.uber.org/zap"
)

// ListAccessions renders the accession index as CSV, HTML, or RSS per
// content negotiation. The from cursor is an exclusive lower bound:
// from=3 lists accession numbers 4, 5, and so on.
func (h *handlers) ListAccessions(w http.ResponseWriter, r *http.Request) {
	representation := util.Negotiate(r, "text/csv", "text/html", "application/rss+xml")
	if representation == "" {
		util.WriteError(w, http.StatusUnsupportedMediaType, "unsupported_representation",
			"accessions render as text/csv, text/html, or application/rss+xml")
		return
	}
	h.writeAccessions(w, r, representation)
}

// AccessionsFeed is the fixed-representation RSS alias for the accession
// listing.
func (h *handlers) AccessionsFeed(w http.ResponseWriter, r *http.Request) {
	h.writeAccessions(w, r, "application/rss+xml")
}

func (h *handlers) writeAccessions(w http.ResponseWriter, r *http.Request, representation string) {
	from := util.ParseFrom(r)
	limit := util.ParseLimit(r, 0, 100000)
	entries := h.ledger.ListFrom(from, limit)

	var body []byte
	var err error
	switch representation {
	case "text/csv":
		body, err = h.renderer.AccessionsCSV(entries)
	case "text/html":
		body, err = h.renderer.AccessionsHTML(entries)
	case "application/rss+xml":
		items := view.FeedItems(entries, func(entry store.Entry) (*store.Publication, error) {
			return h.ledger.GetByAccession(r.Context(), entry.Number)
		})
		body, err = h.renderer.AccessionsRSS(items)
	}
	if err != nil {
		zap.S().Errorw("accession render failed", "representation", representation, "error", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "failed to render accessions")
		return
	}

	contentType := representation
	if representation != "application/rss+xml" {
		contentType += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// RedirectAccession answers a 303 redirect to the record's canonical
// digest-addressed location. Out-of-range and unparsable numbers are 404.
func (h *handlers) RedirectAccession(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(chi.URLParam(r, "number"), 10, 64)
	if err != nil || n < 1 {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such accession")
		return
	}

	p, err := h.ledger.GetByAccession(r.Context(), n)
	if err != nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such accession")
		return
	}
	http.Redirect(w, r, h.renderer.PublicationLocation(p.Digest.String()), http.StatusSeeOther)
}
