package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/models"
	"github.com/starford/mdgraph/internal/testutil"
)

func seeded(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	m := testutil.TestManager(t)
	e := graphsync.New(m, testutil.Logger())
	notes := []graphsync.NoteInput{
		graphsync.FromContent("/n/a.md", "# Alpha\nsee [[b]] and [[c]]\n@alice #proj"),
		graphsync.FromContent("/n/b.md", "# Beta\n@alice @bob\n#proj #misc"),
		graphsync.FromContent("/n/c.md", "# Gamma\n[[a]]"),
		graphsync.FromContent("/n/journal/2024-01-15.md", "# Jan 15\n#proj"),
	}
	_, err := e.Reindex(ctx, notes)
	require.NoError(t, err)
	return New(m, nil)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, Limit(0))
	assert.Equal(t, DefaultLimit, Limit(-3))
	assert.Equal(t, 7, Limit(7))
	assert.Equal(t, MaxLimit, Limit(10_000))
}

func TestNotesByTagAndPerson(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	byTag, err := s.NotesByTag(ctx, "#PROJ", 0)
	require.NoError(t, err)
	assert.Len(t, byTag, 3)

	limited, err := s.NotesByTag(ctx, "proj", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byPerson, err := s.NotesByPerson(ctx, "@Alice", 0)
	require.NoError(t, err)
	require.Len(t, byPerson, 2)
	assert.Equal(t, "Alpha", byPerson[0].Title)
	assert.Equal(t, 3, byPerson[0].Line)

	none, err := s.NotesByTag(ctx, "absent", 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestLinkedNotesAndBacklinks(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	ln, err := s.LinkedNotes(ctx, "/n/a.md", 0)
	require.NoError(t, err)
	assert.Len(t, ln.Outgoing, 2)
	require.Len(t, ln.Incoming, 1)
	assert.Equal(t, "/n/c.md", ln.Incoming[0].Path)

	ln, err = s.LinkedNotes(ctx, "/nowhere.md", 0)
	require.NoError(t, err)
	assert.Empty(t, ln.Outgoing)
	assert.Empty(t, ln.Incoming)

	back, err := s.Backlinks(ctx, "/n/b.md", 0)
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, 2, back[0].Line)
}

func TestRelated(t *testing.T) {
	s := seeded(t)
	rel, err := s.Related(context.Background(), "/n/a.md", 0)
	require.NoError(t, err)
	require.Len(t, rel, 2)
	assert.Equal(t, "/n/b.md", rel[0].Path)
	assert.Equal(t, 2, rel[0].SharedCount)
	assert.ElementsMatch(t, []string{"Tag: proj", "Person: alice"}, rel[0].Connections)
	assert.Equal(t, "/n/journal/2024-01-15.md", rel[1].Path)
}

func TestNoteContextAndStats(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	nc, err := s.NoteContext(ctx, "/n/b.md")
	require.NoError(t, err)
	assert.Equal(t, "Beta", nc.Title)
	assert.Equal(t, []string{"misc", "proj"}, nc.Tags)
	assert.Equal(t, []string{"alice", "bob"}, nc.Mentions)
	assert.Empty(t, nc.Outgoing)
	assert.Len(t, nc.Backlinks, 1)

	st, err := s.NoteStats(ctx, "/n/a.md")
	require.NoError(t, err)
	assert.Equal(t, models.NoteStats{Path: "/n/a.md", Links: 2, Mentions: 1, Tags: 1}, st)

	_, err = s.NoteContext(ctx, "/missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.NoteStats(ctx, "/missing.md")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestTagsAndPeople(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	tags, err := s.Tags(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []models.TagCount{{Name: "proj", Count: 3}, {Name: "misc", Count: 1}}, tags)

	people, err := s.People(ctx, 0)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "alice", people[0].Name)
	assert.Equal(t, 2, people[0].MentionCount)
}

func TestFindByFilenameAndJournals(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	f, err := s.FindByFilename(ctx, "BETA", 0)
	require.NoError(t, err)
	require.Len(t, f, 1)
	assert.Equal(t, "/n/b.md", f[0].Path)

	empty, err := s.FindByFilename(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	j, err := s.JournalsByDate(ctx, "2024-01-01", "2024-01-31", 0)
	require.NoError(t, err)
	require.Len(t, j, 1)
	assert.Equal(t, "2024-01-15.md", j[0].Filename)

	j, err = s.JournalsByDate(ctx, "2024-01-15", "", 0)
	require.NoError(t, err)
	assert.Len(t, j, 1)

	_, err = s.JournalsByDate(ctx, "", "", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGraphStatsAndRaw(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	st, err := s.GraphStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GraphStats{Notes: 4, Persons: 2, Tags: 2, Links: 3, Mentions: 3, TagUsages: 4}, st)

	res, err := s.Raw(ctx, `SELECT COUNT(*) AS n FROM notes`, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, res.Columns)
	assert.Equal(t, [][]any{{int64(4)}}, res.Results)

	_, err = s.Raw(ctx, " ", nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = s.Raw(ctx, "NOT SQL", nil)
	assert.ErrorIs(t, err, apperr.ErrQuery)
}

func TestSearchContent(t *testing.T) {
	m := testutil.TestManager(t)
	dir, vault := testutil.TestVault(t)
	testutil.WriteNote(t, dir, "a.md", "# Alpha\nfind the marker here")
	s := New(m, vault)

	res, err := s.SearchContent(context.Background(), "MARKER", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Alpha", res[0].Title)
	assert.Equal(t, 2, res[0].Matches[0].Line)

	none, err := New(m, nil).SearchContent(context.Background(), "marker", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
