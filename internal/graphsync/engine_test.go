package graphsync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphstore"
	"github.com/starford/mdgraph/internal/models"
	"github.com/starford/mdgraph/internal/session"
	"github.com/starford/mdgraph/internal/testutil"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...Option) (*Engine, *session.Manager) {
	t.Helper()
	m := testutil.TestManager(t)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(m, testutil.Logger(), opts...), m
}

// snapshot renders every node and edge as sorted rows.
func snapshot(t *testing.T, m *session.Manager) map[string][][]any {
	t.Helper()
	queries := map[string]string{
		"notes":        `SELECT path, title, filename, stem, last_modified, content_hash, placeholder FROM notes ORDER BY path`,
		"persons":      `SELECT name, display_name FROM persons ORDER BY name`,
		"tags":         `SELECT name FROM tags ORDER BY name`,
		"links":        `SELECT s.path, t.path, l.line_number FROM links l JOIN notes s ON s.id = l.source_id JOIN notes t ON t.id = l.target_id ORDER BY 1, 2, 3`,
		"mentions":     `SELECT n.path, p.name, x.line_number FROM mentions x JOIN notes n ON n.id = x.note_id JOIN persons p ON p.id = x.person_id ORDER BY 1, 2, 3`,
		"note_tags":    `SELECT n.path, g.name, x.line_number FROM note_tags x JOIN notes n ON n.id = x.note_id JOIN tags g ON g.id = x.tag_id ORDER BY 1, 2, 3`,
		"person_notes": `SELECT p.name, n.path FROM person_notes x JOIN notes n ON n.id = x.note_id JOIN persons p ON p.id = x.person_id ORDER BY 1, 2`,
	}
	out := make(map[string][][]any, len(queries))
	ctx := context.Background()
	for name, q := range queries {
		err := m.Do(ctx, func(b graphstore.Backend) error {
			res, err := b.Raw(ctx, q, nil)
			if err != nil {
				return err
			}
			out[name] = res.Results
			return nil
		})
		require.NoError(t, err, name)
	}
	return out
}

func stats(t *testing.T, m *session.Manager) models.GraphStats {
	t.Helper()
	var st models.GraphStats
	ctx := context.Background()
	require.NoError(t, m.Do(ctx, func(b graphstore.Backend) error {
		var err error
		st, err = b.Stats(ctx)
		return err
	}))
	return st
}

func outgoing(t *testing.T, m *session.Manager, path string) []models.NoteRef {
	t.Helper()
	var refs []models.NoteRef
	ctx := context.Background()
	require.NoError(t, m.Do(ctx, func(b graphstore.Backend) error {
		var err error
		refs, err = b.OutgoingLinks(ctx, path, 100)
		return err
	}))
	return refs
}

func backlinks(t *testing.T, m *session.Manager, path string) []models.NoteRef {
	t.Helper()
	var refs []models.NoteRef
	ctx := context.Background()
	require.NoError(t, m.Do(ctx, func(b graphstore.Backend) error {
		var err error
		refs, err = b.Backlinks(ctx, path, 100)
		return err
	}))
	return refs
}

func TestUpsert_LinkMentionTagScenario(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	res, err := e.UpsertNote(ctx, FromContent("/n/a.md", "see [[b]]\nwith @alice\n#proj"))
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Path: "/n/a.md", Links: 1, Mentions: 1, Tags: 1}, res)

	snap := snapshot(t, m)
	assert.Equal(t, [][]any{{"/n/a.md", "b", int64(1)}}, snap["links"])
	assert.Equal(t, [][]any{{"/n/a.md", "alice", int64(2)}}, snap["mentions"])
	assert.Equal(t, [][]any{{"/n/a.md", "proj", int64(3)}}, snap["note_tags"])
	assert.Equal(t, [][]any{{"alice", "/n/a.md"}}, snap["person_notes"])

	st := stats(t, m)
	assert.Equal(t, models.GraphStats{Notes: 2, Persons: 1, Tags: 1, Links: 1, Mentions: 1, TagUsages: 1}, st)
}

func TestUpsert_Idempotent(t *testing.T) {
	ticks := 0
	e, m := newEngine(t, WithClock(func() time.Time {
		ticks++
		return fixedNow.Add(time.Duration(ticks) * time.Hour)
	}))
	ctx := context.Background()
	in := FromContent("/n/a.md", "[[b]] [[c]]\n@Alice #x #x")

	_, err := e.UpsertNote(ctx, in)
	require.NoError(t, err)
	first := snapshot(t, m)

	_, err = e.UpsertNote(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, m))
}

func TestUpsert_ChangedContentRefreshesLastModified(t *testing.T) {
	ticks := 0
	e, m := newEngine(t, WithClock(func() time.Time {
		ticks++
		return fixedNow.Add(time.Duration(ticks) * time.Hour)
	}))
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "one"))
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/n/a.md", "two"))
	require.NoError(t, err)

	notes := snapshot(t, m)["notes"]
	require.Len(t, notes, 1)
	assert.Equal(t, fixedNow.Add(2*time.Hour).Format(time.RFC3339), notes[0][4])

	in := FromContent("/n/a.md", "two")
	in.LastModified = "2023-01-01T00:00:00Z"
	_, err = e.UpsertNote(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01T00:00:00Z", snapshot(t, m)["notes"][0][4])
}

func TestUpsert_EdgeReplacement(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "[[b]]\n[[c]]\n[[d]] [[b]]\n@bob #t"))
	require.NoError(t, err)
	assert.Len(t, outgoing(t, m, "/n/a.md"), 4)

	_, err = e.UpsertNote(ctx, FromContent("/n/a.md", "only [[c]]"))
	require.NoError(t, err)
	out := outgoing(t, m, "/n/a.md")
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Path)

	snap := snapshot(t, m)
	assert.Empty(t, snap["mentions"])
	assert.Empty(t, snap["note_tags"])
	assert.Empty(t, snap["person_notes"])
	assert.Len(t, snap["persons"], 1, "persons persist as vocabulary")
}

func TestUpsert_ForwardReferenceAdoptsPlaceholder(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "see [[B]]"))
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/n/c.md", "also [[b|bee]]"))
	require.NoError(t, err)
	assert.Equal(t, 3, stats(t, m).Notes, "both links share the placeholder B")

	_, err = e.UpsertNote(ctx, FromContent("/n/b.md", "# Bee\nhello"))
	require.NoError(t, err)

	st := stats(t, m)
	assert.Equal(t, 3, st.Notes, "placeholder became the note, no duplicate")
	assert.Equal(t, 2, st.Links)

	back := backlinks(t, m, "/n/b.md")
	require.Len(t, back, 2)
	assert.ElementsMatch(t, []string{"/n/a.md", "/n/c.md"}, []string{back[0].Path, back[1].Path})

	notes := snapshot(t, m)["notes"]
	assert.Equal(t, []any{"/n/b.md", "Bee", "b.md", "b", fixedNow.Format(time.RFC3339), notes[1][5], int64(0)}, notes[1])
}

func TestUpsert_MergesExtraPlaceholders(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "[[b]]"))
	require.NoError(t, err)
	require.NoError(t, m.Do(ctx, func(b graphstore.Backend) error {
		return b.Update(ctx, func(w graphstore.Writer) error {
			if err := w.PutPlaceholder(ctx, "B.md"); err != nil {
				return err
			}
			return w.Link(ctx, "/n/a.md", "B.md", 2)
		})
	}))
	assert.Equal(t, 3, stats(t, m).Notes)

	_, err = e.UpsertNote(ctx, FromContent("/n/b.md", "b"))
	require.NoError(t, err)
	assert.Equal(t, 2, stats(t, m).Notes)
	assert.Len(t, backlinks(t, m, "/n/b.md"), 2)
}

func TestUpsert_PathKeyedPlaceholderWaitsForItsPath(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, NoteInput{
		Path:    "/v/a.md",
		Content: "[[sub/b]]",
		Entities: models.Entities{Links: []models.LinkRef{
			{Target: "sub/b", TargetPath: "/v/sub/b.md", Line: 1},
		}},
	})
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/v/other/b.md", "# Other B"))
	require.NoError(t, err)
	assert.Empty(t, backlinks(t, m, "/v/other/b.md"), "same stem, different path")
	assert.Equal(t, 3, stats(t, m).Notes)

	_, err = e.UpsertNote(ctx, FromContent("/v/sub/b.md", "# Sub B"))
	require.NoError(t, err)

	out := outgoing(t, m, "/v/a.md")
	require.Len(t, out, 1)
	assert.Equal(t, "/v/sub/b.md", out[0].Path)
	assert.Equal(t, "Sub B", out[0].Title)
	assert.Equal(t, 3, stats(t, m).Notes, "placeholder adopted, no duplicate")
}

func TestUpsert_AbsoluteTargetDoesNotFallBackToStem(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/v/other/b.md", "x"))
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/v/a.md", "[[/v/sub/b.md]]"))
	require.NoError(t, err)

	out := outgoing(t, m, "/v/a.md")
	require.Len(t, out, 1)
	assert.Equal(t, "/v/sub/b.md", out[0].Path, "placeholder at the named path")
	assert.Empty(t, backlinks(t, m, "/v/other/b.md"))
}

func TestUpsert_RelativeTargetMatchesTrailingSegments(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	for _, p := range []string{"/v/a/b.md", "/v/sub/b.md"} {
		_, err := e.UpsertNote(ctx, FromContent(p, "x"))
		require.NoError(t, err)
	}
	_, err := e.UpsertNote(ctx, FromContent("/v/src.md", "[[sub/b]]\n[[b]]"))
	require.NoError(t, err)

	out := outgoing(t, m, "/v/src.md")
	require.Len(t, out, 2)
	assert.ElementsMatch(t, []string{"/v/a/b.md", "/v/sub/b.md"}, []string{out[0].Path, out[1].Path},
		"sub/b picks its own directory, bare b the first stem match")
}

func TestConcurrentWritersAndReadersShareOneSession(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			_, err := e.UpsertNote(ctx, FromContent(fmt.Sprintf("/n/%d.md", i), "[[hub]] @pat #shared"))
			return err
		})
		g.Go(func() error {
			return m.Do(ctx, func(b graphstore.Backend) error {
				_, err := b.Stats(ctx)
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, models.GraphStats{Notes: 9, Persons: 1, Tags: 1, Links: 8, Mentions: 8, TagUsages: 8}, stats(t, m))
	assert.Len(t, backlinks(t, m, "hub"), 8, "every writer linked the same placeholder")
}

func TestUpsert_ResolvesByPathThenStem(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	for _, p := range []string{"/z/dup.md", "/a/dup.md"} {
		_, err := e.UpsertNote(ctx, FromContent(p, "x"))
		require.NoError(t, err)
	}
	_, err := e.UpsertNote(ctx, FromContent("/n/src.md", "[[dup]]\n[[/z/dup.md]]"))
	require.NoError(t, err)

	out := outgoing(t, m, "/n/src.md")
	require.Len(t, out, 2)
	assert.Equal(t, "/a/dup.md", out[0].Path, "first stem match by path wins")
	assert.Equal(t, "/z/dup.md", out[1].Path, "exact path wins")
}

func TestUpsert_PersonNoteAndDisplayName(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/people/Alice.md", "# Alice"))
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/n/a.md", "@ALICE and @alice"))
	require.NoError(t, err)

	snap := snapshot(t, m)
	assert.Equal(t, [][]any{{"alice", "alice"}}, snap["persons"], "latest capitalization wins")
	assert.Equal(t, [][]any{{"alice", "/n/a.md"}, {"alice", "/n/people/Alice.md"}}, snap["person_notes"])
	assert.Len(t, snap["mentions"], 2)
}

func TestUpsert_Validation(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, NoteInput{Path: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = e.UpsertNote(ctx, NoteInput{Path: "/n/a.md", LastModified: "yesterday"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpsert_RequiresConnection(t *testing.T) {
	m := session.NewManager(session.SQLiteDialer(filepath.Join(t.TempDir(), "g.db")), testutil.Logger())
	e := New(m, testutil.Logger())
	_, err := e.UpsertNote(context.Background(), FromContent("/n/a.md", "x"))
	assert.ErrorIs(t, err, apperr.ErrConnection)
}

func TestDeleteNote(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "[[b]] #solo"))
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/n/c.md", "[[a]] [[d]]"))
	require.NoError(t, err)

	require.NoError(t, e.DeleteNote(ctx, "/n/a.md"))
	assert.Empty(t, outgoing(t, m, "/n/a.md"))
	assert.Empty(t, backlinks(t, m, "/n/a.md"))

	out := outgoing(t, m, "/n/c.md")
	require.Len(t, out, 1, "unrelated edges survive")
	assert.Equal(t, "d", out[0].Path)
	assert.Equal(t, 1, stats(t, m).Tags, "tags persist by default")

	err = e.DeleteNote(ctx, "/n/a.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteNote_PruneOrphans(t *testing.T) {
	e, m := newEngine(t, WithPruneOrphans(true))
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "#solo #shared @ann"))
	require.NoError(t, err)
	_, err = e.UpsertNote(ctx, FromContent("/n/c.md", "#shared"))
	require.NoError(t, err)
	require.NoError(t, e.DeleteNote(ctx, "/n/a.md"))

	snap := snapshot(t, m)
	assert.Equal(t, [][]any{{"shared"}}, snap["tags"])
	assert.Empty(t, snap["persons"])
}

func TestReindex_RoundTripMatchesSequentialUpserts(t *testing.T) {
	ctx := context.Background()
	notes := []NoteInput{
		FromContent("/n/c.md", "[[a]] @Bob #x"),
		FromContent("/n/a.md", "[[b]] [[c]]\n#x #y"),
		FromContent("/n/b.md", "@bob\n[[missing]]"),
		FromContent("/n/people/bob.md", "Bob"),
	}

	e1, m1 := newEngine(t)
	res, err := e1.Reindex(ctx, notes)
	require.NoError(t, err)
	assert.Equal(t, ReindexResult{Indexed: 4, Total: 4, Errors: []ReindexError{}}, res)

	e2, m2 := newEngine(t)
	for _, p := range []int{1, 2, 0, 3} {
		_, err := e2.UpsertNote(ctx, notes[p])
		require.NoError(t, err)
	}
	assert.Equal(t, snapshot(t, m2), snapshot(t, m1))
}

func TestReindex_ReplacesGraph(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/old.md", "[[x]] @p #t"))
	require.NoError(t, err)

	res, err := e.Reindex(ctx, []NoteInput{
		FromContent("/n/a.md", "hi"),
		{Path: "", Content: "no path"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Errors, 1)

	st := stats(t, m)
	assert.Equal(t, models.GraphStats{Notes: 1}, st)
}

func TestReindex_EmptyClearsEverything(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "[[b]] @alice #proj"))
	require.NoError(t, err)

	res, err := e.Reindex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Equal(t, models.GraphStats{}, stats(t, m))
}

func TestObserver(t *testing.T) {
	var events []string
	e, _ := newEngine(t, WithObserver(func(kind, path string) {
		events = append(events, fmt.Sprintf("%s:%s", kind, path))
	}))
	ctx := context.Background()

	_, err := e.UpsertNote(ctx, FromContent("/n/a.md", "x"))
	require.NoError(t, err)
	require.NoError(t, e.DeleteNote(ctx, "/n/a.md"))
	_, err = e.Reindex(ctx, nil)
	require.NoError(t, err)
	_ = e.DeleteNote(ctx, "/n/a.md")

	assert.Equal(t, []string{"synced:/n/a.md", "deleted:/n/a.md", "reindexed:"}, events)
}

func TestVaultSync(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()
	dir, vault := testutil.TestVault(t)

	testutil.WriteNote(t, dir, "a.md", "# A\n[[b]] #x")
	testutil.WriteNote(t, dir, "sub/b.md", "# B\n@carol")

	res, err := e.SyncVault(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Indexed: 2}, res)
	assert.Len(t, backlinks(t, m, vault.NotePath("sub/b.md")), 1)

	res, err = e.SyncVault(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Unchanged: 2}, res)

	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	res, err = e.SyncVault(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Unchanged: 1, Removed: 1}, res)
	assert.Equal(t, 1, stats(t, m).Notes)
}

func TestVaultReindexAndFiles(t *testing.T) {
	e, m := newEngine(t)
	ctx := context.Background()
	dir, vault := testutil.TestVault(t)

	testutil.WriteNote(t, dir, "journal/2024-01-15.md", "met @dave about [[plan]]")
	testutil.WriteNote(t, dir, "plan.md", "# Plan\n#work")

	res, err := e.ReindexVault(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 2, res.Total)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, stats(t, m).Notes, "link resolved to plan.md by stem")

	testutil.WriteNote(t, dir, "extra.md", "[[plan]]")
	require.NoError(t, e.IndexFile(ctx, vault, "extra.md"))
	assert.Len(t, backlinks(t, m, vault.NotePath("plan.md")), 2)

	require.NoError(t, e.RemoveFile(ctx, vault, "extra.md"))
	require.NoError(t, e.RemoveFile(ctx, vault, "extra.md"), "missing note is not an error")
	assert.Len(t, backlinks(t, m, vault.NotePath("plan.md")), 1)
}
