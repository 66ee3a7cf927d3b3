// Package query serves the read-only questions asked about the note graph.
package query

import (
	"context"
	"strings"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphstore"
	"github.com/starford/mdgraph/internal/models"
	"github.com/starford/mdgraph/internal/session"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// ContentSearcher finds notes by their text.
type ContentSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.ContentMatch, error)
}

// Service answers queries about the graph. Apart from Raw, which runs
// whatever the caller sends, it never mutates anything.
type Service struct {
	sessions *session.Manager
	content  ContentSearcher
}

// New returns a Service. content may be nil, in which case content search
// returns no results.
func New(sessions *session.Manager, content ContentSearcher) *Service {
	return &Service{sessions: sessions, content: content}
}

// Limit normalizes a caller-supplied bound.
func Limit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}

func read[T any](ctx context.Context, s *Service, fn func(graphstore.Backend) (T, error)) (T, error) {
	var out T
	err := s.sessions.Do(ctx, func(b graphstore.Backend) error {
		var err error
		out, err = fn(b)
		return err
	})
	return out, err
}

// NotesByTag lists notes tagged with tag, with or without the leading '#'.
func (s *Service) NotesByTag(ctx context.Context, tag string, limit int) ([]models.NoteRef, error) {
	key := models.TagKey(tag)
	if key == "" {
		return []models.NoteRef{}, nil
	}
	return read(ctx, s, func(b graphstore.Backend) ([]models.NoteRef, error) {
		return b.NotesByTag(ctx, key, Limit(limit))
	})
}

// NotesByPerson lists notes mentioning person, with or without the '@'.
func (s *Service) NotesByPerson(ctx context.Context, person string, limit int) ([]models.NoteRef, error) {
	key := models.PersonKey(person)
	if key == "" {
		return []models.NoteRef{}, nil
	}
	return read(ctx, s, func(b graphstore.Backend) ([]models.NoteRef, error) {
		return b.NotesByPerson(ctx, key, Limit(limit))
	})
}

// LinkedNotes returns links in both directions. An unknown path yields two
// empty lists.
func (s *Service) LinkedNotes(ctx context.Context, path string, limit int) (models.LinkedNotes, error) {
	path = strings.TrimSpace(path)
	return read(ctx, s, func(b graphstore.Backend) (models.LinkedNotes, error) {
		out, err := b.OutgoingLinks(ctx, path, Limit(limit))
		if err != nil {
			return models.LinkedNotes{}, err
		}
		in, err := b.Backlinks(ctx, path, Limit(limit))
		if err != nil {
			return models.LinkedNotes{}, err
		}
		return models.LinkedNotes{Outgoing: out, Incoming: in}, nil
	})
}

// Backlinks lists notes linking to path.
func (s *Service) Backlinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error) {
	path = strings.TrimSpace(path)
	return read(ctx, s, func(b graphstore.Backend) ([]models.NoteRef, error) {
		return b.Backlinks(ctx, path, Limit(limit))
	})
}

// Related lists notes sharing tags or people with path, most shared first.
func (s *Service) Related(ctx context.Context, path string, limit int) ([]models.RelatedNote, error) {
	path = strings.TrimSpace(path)
	return read(ctx, s, func(b graphstore.Backend) ([]models.RelatedNote, error) {
		return b.Related(ctx, path, Limit(limit))
	})
}

// NoteContext gathers a note's tags, people and links.
func (s *Service) NoteContext(ctx context.Context, path string) (models.NoteContext, error) {
	path = strings.TrimSpace(path)
	return read(ctx, s, func(b graphstore.Backend) (models.NoteContext, error) {
		n, err := b.GetNote(ctx, path)
		if err != nil {
			return models.NoteContext{}, err
		}
		if n == nil {
			return models.NoteContext{}, apperr.NotFound("note not found: %s", path)
		}
		nc := models.NoteContext{Path: n.Path, Title: n.Title}
		if nc.Tags, err = b.NoteTags(ctx, path); err != nil {
			return nc, err
		}
		if nc.Mentions, err = b.NoteMentions(ctx, path); err != nil {
			return nc, err
		}
		if nc.Outgoing, err = b.OutgoingLinks(ctx, path, MaxLimit); err != nil {
			return nc, err
		}
		if nc.Backlinks, err = b.Backlinks(ctx, path, MaxLimit); err != nil {
			return nc, err
		}
		return nc, nil
	})
}

// NoteStats counts a note's outgoing links, mentions and tags.
func (s *Service) NoteStats(ctx context.Context, path string) (models.NoteStats, error) {
	path = strings.TrimSpace(path)
	return read(ctx, s, func(b graphstore.Backend) (models.NoteStats, error) {
		n, err := b.GetNote(ctx, path)
		if err != nil {
			return models.NoteStats{}, err
		}
		if n == nil {
			return models.NoteStats{}, apperr.NotFound("note not found: %s", path)
		}
		return b.NoteStats(ctx, path)
	})
}

// Tags lists tags by usage.
func (s *Service) Tags(ctx context.Context, limit int) ([]models.TagCount, error) {
	return read(ctx, s, func(b graphstore.Backend) ([]models.TagCount, error) {
		return b.Tags(ctx, Limit(limit))
	})
}

// People lists persons by mention count.
func (s *Service) People(ctx context.Context, limit int) ([]models.PersonCount, error) {
	return read(ctx, s, func(b graphstore.Backend) ([]models.PersonCount, error) {
		return b.People(ctx, Limit(limit))
	})
}

// FindByFilename matches pattern against filenames and titles.
func (s *Service) FindByFilename(ctx context.Context, pattern string, limit int) ([]models.NoteRef, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return []models.NoteRef{}, nil
	}
	return read(ctx, s, func(b graphstore.Backend) ([]models.NoteRef, error) {
		return b.FindByFilename(ctx, pattern, Limit(limit))
	})
}

// JournalsByDate lists journal and date-prefixed notes whose filename falls
// between start and end by prefix. An empty end means start.
func (s *Service) JournalsByDate(ctx context.Context, start, end string, limit int) ([]models.NoteRef, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" {
		return nil, apperr.Validation(nil, "query: start date is required")
	}
	if end == "" {
		end = start
	}
	return read(ctx, s, func(b graphstore.Backend) ([]models.NoteRef, error) {
		return b.Journals(ctx, start, end, Limit(limit))
	})
}

// SearchContent delegates to the content source.
func (s *Service) SearchContent(ctx context.Context, query string, limit int) ([]models.ContentMatch, error) {
	if s.content == nil {
		return []models.ContentMatch{}, nil
	}
	res, err := s.content.Search(ctx, query, Limit(limit))
	if err != nil {
		return nil, apperr.Query(err, "query: content search")
	}
	return res, nil
}

// GraphStats returns node and edge counts.
func (s *Service) GraphStats(ctx context.Context) (models.GraphStats, error) {
	return read(ctx, s, func(b graphstore.Backend) (models.GraphStats, error) {
		return b.Stats(ctx)
	})
}

// Raw passes query through to the store.
func (s *Service) Raw(ctx context.Context, query string, params map[string]any) (*graphstore.RawResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation(nil, "query: query is required")
	}
	return read(ctx, s, func(b graphstore.Backend) (*graphstore.RawResult, error) {
		return b.Raw(ctx, query, params)
	})
}
