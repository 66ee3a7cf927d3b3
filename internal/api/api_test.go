package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/models"
	"github.com/starford/mdgraph/internal/query"
	"github.com/starford/mdgraph/internal/session"
	"github.com/starford/mdgraph/internal/testutil"
)

// testEnv seeds a temp vault into a SQLite graph and returns the router.
// An empty token disables auth.
func testEnv(t *testing.T, token string) http.Handler {
	t.Helper()
	router, _ := testEnvWithSSE(t, token, nil)
	return router
}

func testEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) (http.Handler, *session.Manager) {
	t.Helper()
	vaultDir, vault := testutil.TestVault(t)
	testutil.WriteNote(t, vaultDir, "a.md", "# Alpha\nsee [[b]] @alice #proj")
	testutil.WriteNote(t, vaultDir, "b.md", "# Beta\n#proj\nfind the needle")
	testutil.WriteNote(t, vaultDir, "journal/2024-03-01.md", "# March\n@alice")

	m := testutil.TestManager(t)
	if _, err := graphsync.New(m, testutil.Logger()).ReindexVault(context.Background(), vault); err != nil {
		t.Fatalf("ReindexVault: %v", err)
	}
	h := NewHandler(query.New(m, vault), vault)
	return NewRouter(h, token != "", token, sseHandler), m
}

func get(t *testing.T, router http.Handler, target string, into any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if into != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
			t.Fatalf("decode %s: %v (%s)", target, err, w.Body.String())
		}
	}
	return w.Code
}

func TestGraphStatsEndpoint(t *testing.T) {
	router := testEnv(t, "")
	var stats models.GraphStats
	if code := get(t, router, "/stats", &stats); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if stats.Notes != 3 || stats.Links != 1 || stats.Persons != 1 || stats.Tags != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestNoteContextEndpoint(t *testing.T) {
	router := testEnv(t, "")

	var nc models.NoteContext
	if code := get(t, router, "/notes/a.md", &nc); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if nc.Title != "Alpha" || len(nc.Outgoing) != 1 || nc.Outgoing[0].Title != "Beta" {
		t.Errorf("context = %+v", nc)
	}

	if code := get(t, router, "/notes/journal%2F2024-03-01.md", &nc); code != http.StatusOK || nc.Title != "March" {
		t.Errorf("encoded path: status = %d, context = %+v", code, nc)
	}
}

func TestNoteContext_NotFound(t *testing.T) {
	router := testEnv(t, "")
	if code := get(t, router, "/notes/nope.md", nil); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if code := get(t, router, "/note-stats/nope.md", nil); code != http.StatusNotFound {
		t.Errorf("note-stats status = %d, want 404", code)
	}
}

func TestLinkEndpoints(t *testing.T) {
	router := testEnv(t, "")

	var ln models.LinkedNotes
	if code := get(t, router, "/links/b.md", &ln); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(ln.Outgoing) != 0 || len(ln.Incoming) != 1 {
		t.Errorf("links = %+v", ln)
	}

	var bl NoteListResponse
	get(t, router, "/backlinks/b.md", &bl)
	if len(bl.Notes) != 1 || bl.Notes[0].Title != "Alpha" {
		t.Errorf("backlinks = %+v", bl)
	}

	var rel RelatedResponse
	get(t, router, "/related/a.md", &rel)
	if len(rel.Notes) != 2 {
		t.Errorf("related = %+v", rel)
	}

	var st models.NoteStats
	get(t, router, "/note-stats/a.md", &st)
	if st.Links != 1 || st.Mentions != 1 || st.Tags != 1 {
		t.Errorf("note stats = %+v", st)
	}
}

func TestTagAndPeopleEndpoints(t *testing.T) {
	router := testEnv(t, "")

	var tags TagsResponse
	get(t, router, "/tags", &tags)
	if len(tags.Tags) != 1 || tags.Tags[0].Count != 2 {
		t.Errorf("tags = %+v", tags)
	}

	var byTag NoteListResponse
	get(t, router, "/tags/proj/notes?limit=1", &byTag)
	if len(byTag.Notes) != 1 {
		t.Errorf("limit ignored: %+v", byTag)
	}

	var people PeopleResponse
	get(t, router, "/people", &people)
	if len(people.People) != 1 || people.People[0].Name != "alice" {
		t.Errorf("people = %+v", people)
	}

	var byPerson NoteListResponse
	get(t, router, "/people/@alice/notes", &byPerson)
	if len(byPerson.Notes) != 2 {
		t.Errorf("by person = %+v", byPerson)
	}
}

func TestSearchEndpoints(t *testing.T) {
	router := testEnv(t, "")

	var sr SearchResponse
	get(t, router, "/search?q=needle", &sr)
	if len(sr.Results) != 1 || sr.Results[0].Matches[0].Line != 3 {
		t.Errorf("search = %+v", sr)
	}

	var found NoteListResponse
	get(t, router, "/find?pattern=alp", &found)
	if len(found.Notes) != 1 {
		t.Errorf("find = %+v", found)
	}

	var journals NoteListResponse
	get(t, router, "/journals?start=2024-03", &journals)
	if len(journals.Notes) != 1 {
		t.Errorf("journals = %+v", journals)
	}
}

func TestMissingQueryParams(t *testing.T) {
	router := testEnv(t, "")
	for _, target := range []string{"/search", "/find", "/journals"} {
		if code := get(t, router, target, nil); code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", target, code)
		}
	}
}

func TestDisconnectedIsUnavailable(t *testing.T) {
	router, m := testEnvWithSSE(t, "", nil)
	if err := m.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if code := get(t, router, "/stats", nil); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	router := testEnv(t, "secret123")
	if code := get(t, router, "/stats", nil); code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	router := testEnv(t, "secret123")
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	router, _ := testEnvWithSSE(t, "secret", blockingSSE)
	if code := get(t, router, "/events", nil); code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router, _ := testEnvWithSSE(t, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
