package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/rocache/internal/crateservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *crateservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/crates", h.ListCrates)
	r.Get("/snapshot", h.GetSnapshot)
	r.Post("/rescan", h.Rescan)

	r.Get("/artifacts", h.SearchArtifacts)
	r.Get("/artifacts/{pseudonym}", h.GetArtifact)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
