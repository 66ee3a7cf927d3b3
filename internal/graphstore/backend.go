// Package graphstore persists the note graph. Two backends share one
// interface: Bolt (Memgraph or Neo4j, Cypher) and an embedded SQLite schema.
package graphstore

import (
	"context"

	"github.com/starford/mdgraph/internal/models"
)

// Writer is the set of graph mutations available inside one transaction.
// Paths, person names and tag names are expected to be normalized already.
type Writer interface {
	// Note returns the note at path, or nil when there is none.
	Note(ctx context.Context, path string) (*models.Note, error)
	// Placeholders lists placeholder notes keyed by path or sharing stem, in
	// ascending path order. Callers narrow the stem matches further.
	Placeholders(ctx context.Context, path, stem string) ([]string, error)
	// NotesByStem lists notes with the given stem, full notes before
	// placeholders, each group in ascending path order.
	NotesByStem(ctx context.Context, stem string) ([]string, error)

	// RenameNote re-keys a note in place; its edges are kept.
	RenameNote(ctx context.Context, from, to string) error
	// MergePlaceholder moves every LINKS_TO edge pointing at from onto into,
	// then deletes from.
	MergePlaceholder(ctx context.Context, from, into string) error
	PutNote(ctx context.Context, n models.Note) error
	PutPlaceholder(ctx context.Context, path string) error
	// ClearEdges drops the note's outgoing LINKS_TO, MENTIONS and HAS_TAG
	// edges and its incoming HAS_NOTE edges.
	ClearEdges(ctx context.Context, path string) error

	Link(ctx context.Context, src, dst string, line int) error
	// PutPerson merges a person. An empty display keeps the stored display
	// name, falling back to name on creation.
	PutPerson(ctx context.Context, name, display string) error
	Mention(ctx context.Context, path, person string, line int) error
	PersonNote(ctx context.Context, person, path string) error
	PutTag(ctx context.Context, name string) error
	Tag(ctx context.Context, path, tag string, line int) error

	// DeleteNote removes the note and every incident edge.
	DeleteNote(ctx context.Context, path string) error
	// PruneOrphans deletes persons and tags with no edges left.
	PruneOrphans(ctx context.Context) error
	// Clear removes every note, person and tag.
	Clear(ctx context.Context) error
}

// Reader is the read-only query surface. Limits are applied as given.
type Reader interface {
	GetNote(ctx context.Context, path string) (*models.Note, error)
	NotesByTag(ctx context.Context, tag string, limit int) ([]models.NoteRef, error)
	NotesByPerson(ctx context.Context, person string, limit int) ([]models.NoteRef, error)
	OutgoingLinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error)
	Backlinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error)
	Related(ctx context.Context, path string, limit int) ([]models.RelatedNote, error)
	NoteTags(ctx context.Context, path string) ([]string, error)
	NoteMentions(ctx context.Context, path string) ([]string, error)
	NoteStats(ctx context.Context, path string) (models.NoteStats, error)
	Tags(ctx context.Context, limit int) ([]models.TagCount, error)
	People(ctx context.Context, limit int) ([]models.PersonCount, error)
	FindByFilename(ctx context.Context, pattern string, limit int) ([]models.NoteRef, error)
	Journals(ctx context.Context, start, end string, limit int) ([]models.NoteRef, error)
	Stats(ctx context.Context) (models.GraphStats, error)
	// ContentHashes maps every full note path to its stored content hash.
	ContentHashes(ctx context.Context) (map[string]string, error)
}

// RawResult is the outcome of a pass-through query.
type RawResult struct {
	Columns []string `json:"columns"`
	Results [][]any  `json:"results"`
	Count   int      `json:"count"`
}

// Backend is one live connection to a graph store. Implementations are not
// safe for concurrent use; callers serialize access.
type Backend interface {
	Reader

	// Ping performs a trivial round trip.
	Ping(ctx context.Context) error
	// EnsureSchema creates indexes or tables. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error
	// Update runs fn in one transaction, committing when fn returns nil.
	Update(ctx context.Context, fn func(Writer) error) error
	// Raw runs a query in the store's native language.
	Raw(ctx context.Context, query string, params map[string]any) (*RawResult, error)
	// Name identifies the backend in logs.
	Name() string
	Close(ctx context.Context) error
}
