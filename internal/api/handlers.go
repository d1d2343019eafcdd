package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rocache/internal/apperr"
	"github.com/starford/rocache/internal/crateservice"
)

const maxSearchLimit = 200

// Handler holds API route handlers.
type Handler struct {
	svc *crateservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *crateservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListCrates handles GET /api/crates.
//
//	@Summary		List every known crate
//	@Tags			crates
//	@Produce		json
//	@Success		200		{object}	CrateListResponse
//	@Security		BearerAuth
//	@Router			/crates [get]
func (h *Handler) ListCrates(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Crates(r.Context())
	if err != nil {
		slog.Error("list crates failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []CrateItem{}
	}
	writeJSON(w, http.StatusOK, CrateListResponse{Crates: items, Total: len(items)})
}

// GetSnapshot handles GET /api/snapshot.
//
//	@Summary		Return the persisted snapshot document
//	@Tags			crates
//	@Produce		json
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshot [get]
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("no snapshot yet"))
		} else {
			slog.Error("load snapshot failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Rescan handles POST /api/rescan.
//
//	@Summary		Run one update cycle
//	@Tags			crates
//	@Produce		json
//	@Success		200		{object}	RescanResult
//	@Failure		500		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rescan [post]
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Rescan(r.Context())
	if err != nil {
		slog.Error("rescan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("rescan failed"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchArtifacts handles GET /api/artifacts.
//
//	@Summary		Search artifacts by name, description or entity id
//	@Tags			artifacts
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts [get]
func (h *Handler) SearchArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	hits, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("search failed"))
		return
	}
	if hits == nil {
		hits = []SearchHit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}

// GetArtifact handles GET /api/artifacts/{pseudonym}.
//
//	@Summary		Resolve a pseudonym to its artifact and link target
//	@Tags			artifacts
//	@Produce		json
//	@Param			pseudonym	path		string	true	"Artifact pseudonym"
//	@Success		200			{object}	ArtifactDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{pseudonym} [get]
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "pseudonym")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("pseudonym is required"))
		return
	}
	detail, err := h.svc.Resolve(r.Context(), name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("resolve failed", slog.String("pseudonym", name), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
