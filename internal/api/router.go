package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/chronicle-network/ledger-go/internal/config"
	"github.com/chronicle-network/ledger-go/internal/core/signature"
	"github.com/chronicle-network/ledger-go/internal/store"
	"github.com/chronicle-network/ledger-go/internal/util"
	"github.com/chronicle-network/ledger-go/internal/view"
)

// NewRouter creates the HTTP router over the ledger.
func NewRouter(ledger *store.FSLedger, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		util.WriteError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", req.Method+" is not supported here")
	})
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		util.WriteError(w, http.StatusNotFound, "not_found", "no such resource")
	})

	h := &handlers{
		ledger:      ledger,
		attachments: ledger.Attachments(),
		proofs:      ledger.Proofs(),
		signer:      ledger.Signer(),
		renderer:    view.NewRenderer(cfg.BaseURL),
		maxBody:     cfg.MaxBodyBytes,
	}

	r.Post("/publications", h.PostPublication)
	r.Get("/publications/{digest}", h.GetPublication)
	r.Get("/publications/{digest}/attachments/{index}", h.GetAttachment)
	r.Get("/publications/{digest}/timestamps", h.ListTimestamps)
	r.Get("/publications/{digest}/timestamps/{key}", h.GetTimestamp)

	r.Get("/accessions", h.ListAccessions)
	r.Get("/accessions/{number}", h.RedirectAccession)
	r.Get("/rss.xml", h.AccessionsFeed)

	r.Get("/key", h.GetKey)

	return r
}

type handlers struct {
	ledger      store.Ledger
	attachments *store.AttachmentStore
	proofs      *store.ProofStore
	signer      *signature.Signer
	renderer    *view.Renderer
	maxBody     int64
}
