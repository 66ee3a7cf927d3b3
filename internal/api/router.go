package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/stats", h.GraphStats)

	// Per-note views; the wildcard is the note path.
	r.Get("/notes/*", h.NoteContext)
	r.Get("/note-stats/*", h.NoteStats)
	r.Get("/links/*", h.LinkedNotes)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/related/*", h.Related)

	r.Get("/tags", h.Tags)
	r.Get("/tags/{tag}/notes", h.NotesByTag)
	r.Get("/people", h.People)
	r.Get("/people/{person}/notes", h.NotesByPerson)

	r.Get("/find", h.FindByFilename)
	r.Get("/journals", h.Journals)
	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}
