package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mdgraph/internal/query"
	"github.com/starford/mdgraph/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	queries *query.Service
	vault   *storage.Cache
}

// NewHandler creates a new Handler. With a vault, note paths in URLs are
// relative to it; without one they are absolute.
func NewHandler(queries *query.Service, vault *storage.Cache) *Handler {
	return &Handler{queries: queries, vault: vault}
}

// notePath extracts the note path from the URL wildcard and maps it to the
// graph key. Encoded slashes (topics%2Fnote.md) are accepted.
func (h *Handler) notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	if h.vault != nil {
		return h.vault.NotePath(raw)
	}
	return "/" + raw
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

func urlParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}

// GraphStats handles GET /api/stats.
//
//	@Summary		Node and edge counts
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	models.GraphStats
//	@Router			/stats [get]
func (h *Handler) GraphStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queries.GraphStats(r.Context())
	if err != nil {
		writeError(w, "graph stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// NoteContext handles GET /api/notes/*.
//
//	@Summary		Title, tags, mentions, outgoing links and backlinks of a note
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	models.NoteContext
//	@Failure		404		{object}	errResponse
//	@Router			/notes/{path} [get]
func (h *Handler) NoteContext(w http.ResponseWriter, r *http.Request) {
	path := h.notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	nc, err := h.queries.NoteContext(r.Context(), path)
	if err != nil {
		writeError(w, "note context", err)
		return
	}
	writeJSON(w, http.StatusOK, nc)
}

// NoteStats handles GET /api/note-stats/*.
func (h *Handler) NoteStats(w http.ResponseWriter, r *http.Request) {
	path := h.notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	st, err := h.queries.NoteStats(r.Context(), path)
	if err != nil {
		writeError(w, "note stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// LinkedNotes handles GET /api/links/*.
func (h *Handler) LinkedNotes(w http.ResponseWriter, r *http.Request) {
	path := h.notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	ln, err := h.queries.LinkedNotes(r.Context(), path, limitParam(r))
	if err != nil {
		writeError(w, "linked notes", err)
		return
	}
	writeJSON(w, http.StatusOK, ln)
}

// Backlinks handles GET /api/backlinks/*.
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := h.notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	notes, err := h.queries.Backlinks(r.Context(), path, limitParam(r))
	if err != nil {
		writeError(w, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// Related handles GET /api/related/*.
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	path := h.notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	notes, err := h.queries.Related(r.Context(), path, limitParam(r))
	if err != nil {
		writeError(w, "related", err)
		return
	}
	writeJSON(w, http.StatusOK, RelatedResponse{Notes: notes})
}

// Tags handles GET /api/tags.
//
//	@Summary		Tags with usage counts
//	@Tags			graph
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	TagsResponse
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.queries.Tags(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, "tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// NotesByTag handles GET /api/tags/{tag}/notes.
func (h *Handler) NotesByTag(w http.ResponseWriter, r *http.Request) {
	notes, err := h.queries.NotesByTag(r.Context(), urlParam(r, "tag"), limitParam(r))
	if err != nil {
		writeError(w, "notes by tag", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// People handles GET /api/people.
func (h *Handler) People(w http.ResponseWriter, r *http.Request) {
	people, err := h.queries.People(r.Context(), limitParam(r))
	if err != nil {
		writeError(w, "people", err)
		return
	}
	writeJSON(w, http.StatusOK, PeopleResponse{People: people})
}

// NotesByPerson handles GET /api/people/{person}/notes.
func (h *Handler) NotesByPerson(w http.ResponseWriter, r *http.Request) {
	notes, err := h.queries.NotesByPerson(r.Context(), urlParam(r, "person"), limitParam(r))
	if err != nil {
		writeError(w, "notes by person", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// FindByFilename handles GET /api/find?pattern=.
func (h *Handler) FindByFilename(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'pattern' is required"))
		return
	}
	notes, err := h.queries.FindByFilename(r.Context(), pattern, limitParam(r))
	if err != nil {
		writeError(w, "find by filename", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// Journals handles GET /api/journals?start=&end=.
//
//	@Summary		Journal and date-prefixed notes in a date range
//	@Tags			search
//	@Produce		json
//	@Param			start	query		string	true	"Start date prefix (YYYY, YYYY-MM or YYYY-MM-DD)"
//	@Param			end		query		string	false	"End date prefix, defaults to start"
//	@Success		200		{object}	NoteListResponse
//	@Failure		400		{object}	errResponse
//	@Router			/journals [get]
func (h *Handler) Journals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes, err := h.queries.JournalsByDate(r.Context(), q.Get("start"), q.Get("end"), limitParam(r))
	if err != nil {
		writeError(w, "journals", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes})
}

// Search handles GET /api/search?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.queries.SearchContent(r.Context(), q, limitParam(r))
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
