// Package graphsync applies note content to the graph: upsert with
// placeholder adoption and edge replacement, deletion, and full reindex.
package graphsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/checksum"
	"github.com/starford/mdgraph/internal/extract"
	"github.com/starford/mdgraph/internal/graphstore"
	"github.com/starford/mdgraph/internal/models"
	"github.com/starford/mdgraph/internal/session"
)

// NoteInput is one note as delivered by a caller.
type NoteInput struct {
	Path         string
	Title        string
	Content      string
	LastModified string // RFC 3339; empty derives it from the stored note
	Entities     models.Entities
}

// Validate checks the fields the engine depends on.
func (n NoteInput) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Path, validation.Required, validation.By(notBlank)),
		validation.Field(&n.LastModified, validation.Date(time.RFC3339)),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}
	return nil
}

// FromContent builds a NoteInput by running the extractor over content.
func FromContent(path, content string) NoteInput {
	return NoteInput{
		Path:     path,
		Title:    extract.Title(path, content),
		Content:  content,
		Entities: extract.Extract(content),
	}
}

// UpsertResult counts the entities applied for one note.
type UpsertResult struct {
	Path     string `json:"path"`
	Links    int    `json:"wikilinks_count"`
	Mentions int    `json:"mentions_count"`
	Tags     int    `json:"hashtags_count"`
}

// ReindexError reports one note that could not be indexed.
type ReindexError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// ReindexResult summarizes a reindex.
type ReindexResult struct {
	Indexed int            `json:"indexed"`
	Total   int            `json:"total"`
	Errors  []ReindexError `json:"errors"`
}

// Event kinds passed to an Observer.
const (
	EventSynced    = "synced"
	EventDeleted   = "deleted"
	EventReindexed = "reindexed"
)

// Observer is called after each committed mutation.
type Observer func(kind, path string)

// Option configures an Engine.
type Option func(*Engine)

// WithPruneOrphans deletes persons and tags left without edges after a
// note is deleted.
func WithPruneOrphans(on bool) Option {
	return func(e *Engine) { e.pruneOrphans = on }
}

// WithObserver registers a mutation callback.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source used for last_modified.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine mutates the graph through a session manager.
type Engine struct {
	sessions     *session.Manager
	log          *slog.Logger
	pruneOrphans bool
	observer     Observer
	now          func() time.Time
}

// New returns an Engine.
func New(sessions *session.Manager, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{sessions: sessions, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) notify(kind, path string) {
	if e.observer != nil {
		e.observer(kind, path)
	}
}

// UpsertNote synchronizes one note in a single transaction.
func (e *Engine) UpsertNote(ctx context.Context, in NoteInput) (UpsertResult, error) {
	if err := in.Validate(); err != nil {
		return UpsertResult{}, apperr.Validation(err, "graphsync: invalid note")
	}
	var res UpsertResult
	err := e.sessions.Do(ctx, func(b graphstore.Backend) error {
		return b.Update(ctx, func(w graphstore.Writer) error {
			var err error
			res, err = e.upsert(ctx, w, in)
			return err
		})
	})
	if err != nil {
		return UpsertResult{}, err
	}
	e.log.Debug("note synced",
		slog.String("path", res.Path),
		slog.Int("links", res.Links),
		slog.Int("mentions", res.Mentions),
		slog.Int("tags", res.Tags),
	)
	e.notify(EventSynced, res.Path)
	return res, nil
}

func (e *Engine) upsert(ctx context.Context, w graphstore.Writer, in NoteInput) (UpsertResult, error) {
	path := strings.TrimSpace(in.Path)
	stem := models.StemOf(path)
	res := UpsertResult{Path: path}

	existing, err := w.Note(ctx, path)
	if err != nil {
		return res, err
	}
	if existing == nil || existing.Placeholder {
		if err := e.adopt(ctx, w, path, stem, existing == nil); err != nil {
			return res, err
		}
	}

	hash := checksum.SumString(in.Content)
	lastModified := in.LastModified
	if lastModified == "" {
		if existing != nil && !existing.Placeholder && existing.ContentHash == hash && existing.LastModified != "" {
			lastModified = existing.LastModified
		} else {
			lastModified = e.now().UTC().Format(time.RFC3339)
		}
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = extract.Title(path, in.Content)
	}

	if err := w.PutNote(ctx, models.Note{
		Path:         path,
		Title:        title,
		Filename:     models.FilenameOf(path),
		Stem:         stem,
		LastModified: lastModified,
		ContentHash:  hash,
	}); err != nil {
		return res, err
	}
	if err := w.ClearEdges(ctx, path); err != nil {
		return res, err
	}

	for _, l := range in.Entities.Links {
		id := l.Identifier()
		if id == "" {
			continue
		}
		target, err := e.resolve(ctx, w, id)
		if err != nil {
			return res, err
		}
		if err := w.Link(ctx, path, target, l.Line); err != nil {
			return res, err
		}
		res.Links++
	}

	for _, m := range in.Entities.Mentions {
		name := models.PersonKey(m.Name)
		if name == "" {
			continue
		}
		display := strings.TrimPrefix(strings.TrimSpace(m.Name), "@")
		if err := w.PutPerson(ctx, name, display); err != nil {
			return res, err
		}
		if err := w.Mention(ctx, path, name, m.Line); err != nil {
			return res, err
		}
		if err := w.PersonNote(ctx, name, path); err != nil {
			return res, err
		}
		res.Mentions++
	}

	for _, t := range in.Entities.Tags {
		name := models.TagKey(t.Name)
		if name == "" {
			continue
		}
		if err := w.PutTag(ctx, name); err != nil {
			return res, err
		}
		if err := w.Tag(ctx, path, name, t.Line); err != nil {
			return res, err
		}
		res.Tags++
	}

	if owner, ok := models.PersonNoteOwner(path); ok {
		if err := w.PutPerson(ctx, owner, ""); err != nil {
			return res, err
		}
		if err := w.PersonNote(ctx, owner, path); err != nil {
			return res, err
		}
	}
	return res, nil
}

// adopt turns placeholders that refer to path into the note at path. A
// placeholder keyed by a full path is only claimed by that path; relative
// keys are claimed by any note they suffix-match. The first is re-keyed in
// place when no node exists at path yet; the rest are merged into it.
func (e *Engine) adopt(ctx context.Context, w graphstore.Writer, path, stem string, rename bool) error {
	found, err := w.Placeholders(ctx, path, stem)
	if err != nil {
		return err
	}
	others := found[:0:0]
	for _, p := range found {
		if p != path && models.LinkMatches(p, path) {
			others = append(others, p)
		}
	}
	if len(others) == 0 {
		return nil
	}
	if rename {
		if err := w.RenameNote(ctx, others[0], path); err != nil {
			return err
		}
		e.log.Debug("placeholder adopted", slog.String("placeholder", others[0]), slog.String("path", path))
		others = others[1:]
	}
	for _, p := range others {
		if err := w.MergePlaceholder(ctx, p, path); err != nil {
			return err
		}
		e.log.Debug("placeholder merged", slog.String("placeholder", p), slog.String("path", path))
	}
	return nil
}

// resolve finds the note a link identifier refers to: exact path, else the
// first note the relative identifier suffix-matches, else a new placeholder
// keyed by identifier. Absolute identifiers never fall back to other paths.
func (e *Engine) resolve(ctx context.Context, w graphstore.Writer, id string) (string, error) {
	n, err := w.Note(ctx, id)
	if err != nil {
		return "", err
	}
	if n != nil {
		return id, nil
	}
	if stem := models.StemOf(id); stem != "" && !models.IsAbsKey(id) {
		candidates, err := w.NotesByStem(ctx, stem)
		if err != nil {
			return "", err
		}
		matches := candidates[:0:0]
		for _, c := range candidates {
			if models.LinkMatches(id, c) {
				matches = append(matches, c)
			}
		}
		if len(matches) > 0 {
			if len(matches) > 1 {
				e.log.Warn("ambiguous link target",
					slog.String("target", id),
					slog.String("chosen", matches[0]),
					slog.Any("candidates", matches),
				)
			}
			return matches[0], nil
		}
	}
	if err := w.PutPlaceholder(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteNote removes the note at path and its incident edges.
func (e *Engine) DeleteNote(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return apperr.Validation(nil, "graphsync: path is required")
	}
	err := e.sessions.Do(ctx, func(b graphstore.Backend) error {
		return b.Update(ctx, func(w graphstore.Writer) error {
			n, err := w.Note(ctx, path)
			if err != nil {
				return err
			}
			if n == nil {
				return apperr.NotFound("note not found: %s", path)
			}
			if err := w.DeleteNote(ctx, path); err != nil {
				return err
			}
			if e.pruneOrphans {
				return w.PruneOrphans(ctx)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	e.log.Debug("note deleted", slog.String("path", path))
	e.notify(EventDeleted, path)
	return nil
}

// Reindex replaces the whole graph with notes. Invalid notes are reported
// and skipped; the rest are applied in ascending path order inside one
// transaction, so a store failure leaves the previous graph untouched.
func (e *Engine) Reindex(ctx context.Context, notes []NoteInput) (ReindexResult, error) {
	res := ReindexResult{Total: len(notes), Errors: []ReindexError{}}
	valid := make([]NoteInput, 0, len(notes))
	for _, n := range notes {
		if err := n.Validate(); err != nil {
			res.Errors = append(res.Errors, ReindexError{Path: n.Path, Error: err.Error()})
			continue
		}
		valid = append(valid, n)
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return strings.TrimSpace(valid[i].Path) < strings.TrimSpace(valid[j].Path)
	})

	err := e.sessions.Do(ctx, func(b graphstore.Backend) error {
		return b.Update(ctx, func(w graphstore.Writer) error {
			if err := w.Clear(ctx); err != nil {
				return err
			}
			for _, n := range valid {
				if _, err := e.upsert(ctx, w, n); err != nil {
					return fmt.Errorf("graphsync: reindex %s: %w", n.Path, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return res, err
	}
	res.Indexed = len(valid)
	e.log.Info("reindex complete",
		slog.Int("indexed", res.Indexed),
		slog.Int("total", res.Total),
		slog.Int("errors", len(res.Errors)),
	)
	e.notify(EventReindexed, "")
	return res, nil
}
