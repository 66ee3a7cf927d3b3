package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/starford/mdgraph/internal/models"
)

// connectionSep separates GROUP_CONCAT labels; names never contain it.
const connectionSep = "\x1f"

func (s *SQLite) GetNote(ctx context.Context, path string) (*models.Note, error) {
	return getNote(ctx, s.conn, path)
}

func (s *SQLite) noteRefs(ctx context.Context, op, query string, args ...any) ([]models.NoteRef, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(err, op)
	}
	defer rows.Close()
	out := []models.NoteRef{}
	for rows.Next() {
		var r models.NoteRef
		if err := rows.Scan(&r.Path, &r.Title, &r.Filename, &r.Line); err != nil {
			return nil, sqliteErr(err, op)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, op)
	}
	return out, nil
}

func (s *SQLite) NotesByTag(ctx context.Context, tag string, limit int) ([]models.NoteRef, error) {
	return s.noteRefs(ctx, "notes by tag", `
		SELECT n.path, n.title, n.filename, nt.line_number
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		JOIN notes n ON n.id = nt.note_id
		WHERE t.name = ?
		ORDER BY n.title, n.path, nt.line_number
		LIMIT ?`, tag, limit)
}

func (s *SQLite) NotesByPerson(ctx context.Context, person string, limit int) ([]models.NoteRef, error) {
	return s.noteRefs(ctx, "notes by person", `
		SELECT n.path, n.title, n.filename, m.line_number
		FROM mentions m
		JOIN persons p ON p.id = m.person_id
		JOIN notes n ON n.id = m.note_id
		WHERE p.name = ?
		ORDER BY n.title, n.path, m.line_number
		LIMIT ?`, person, limit)
}

func (s *SQLite) OutgoingLinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error) {
	return s.noteRefs(ctx, "outgoing links", `
		SELECT t.path, t.title, t.filename, l.line_number
		FROM links l
		JOIN notes src ON src.id = l.source_id
		JOIN notes t ON t.id = l.target_id
		WHERE src.path = ?
		ORDER BY l.line_number, t.path
		LIMIT ?`, path, limit)
}

func (s *SQLite) Backlinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error) {
	return s.noteRefs(ctx, "backlinks", `
		SELECT src.path, src.title, src.filename, l.line_number
		FROM links l
		JOIN notes src ON src.id = l.source_id
		JOIN notes t ON t.id = l.target_id
		WHERE t.path = ?
		ORDER BY src.title, src.path, l.line_number
		LIMIT ?`, path, limit)
}

func (s *SQLite) Related(ctx context.Context, path string, limit int) ([]models.RelatedNote, error) {
	const op = "related"
	rows, err := s.conn.QueryContext(ctx, `
		WITH me AS (SELECT id FROM notes WHERE path = ?),
		shared AS (
			SELECT 'Tag: ' || t.name AS label, o.note_id AS other
			FROM note_tags mine
			JOIN note_tags o ON o.tag_id = mine.tag_id
			JOIN tags t ON t.id = mine.tag_id
			WHERE mine.note_id = (SELECT id FROM me)
			UNION
			SELECT 'Person: ' || p.name, o.note_id
			FROM mentions mine
			JOIN mentions o ON o.person_id = mine.person_id
			JOIN persons p ON p.id = mine.person_id
			WHERE mine.note_id = (SELECT id FROM me)
		)
		SELECT n.path, n.title, COUNT(*) AS shared_count, GROUP_CONCAT(shared.label, ?)
		FROM shared
		JOIN notes n ON n.id = shared.other
		WHERE n.id <> (SELECT id FROM me)
		GROUP BY n.id
		ORDER BY shared_count DESC, n.path
		LIMIT ?`, path, connectionSep, limit)
	if err != nil {
		return nil, sqliteErr(err, op)
	}
	defer rows.Close()
	out := []models.RelatedNote{}
	for rows.Next() {
		var (
			r      models.RelatedNote
			labels sql.NullString
		)
		if err := rows.Scan(&r.Path, &r.Title, &r.SharedCount, &labels); err != nil {
			return nil, sqliteErr(err, op)
		}
		r.Connections = []string{}
		if labels.String != "" {
			r.Connections = strings.Split(labels.String, connectionSep)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, op)
	}
	return out, nil
}

func (s *SQLite) NoteTags(ctx context.Context, path string) ([]string, error) {
	return queryStrings(ctx, s.conn, "note tags", `
		SELECT DISTINCT t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		JOIN notes n ON n.id = nt.note_id
		WHERE n.path = ?
		ORDER BY t.name`, path)
}

func (s *SQLite) NoteMentions(ctx context.Context, path string) ([]string, error) {
	return queryStrings(ctx, s.conn, "note mentions", `
		SELECT DISTINCT p.name
		FROM mentions m
		JOIN persons p ON p.id = m.person_id
		JOIN notes n ON n.id = m.note_id
		WHERE n.path = ?
		ORDER BY p.name`, path)
}

func (s *SQLite) NoteStats(ctx context.Context, path string) (models.NoteStats, error) {
	st := models.NoteStats{Path: path}
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM links WHERE source_id = n.id),
			(SELECT COUNT(*) FROM mentions WHERE note_id = n.id),
			(SELECT COUNT(*) FROM note_tags WHERE note_id = n.id)
		FROM notes n WHERE n.path = ?`, path).Scan(&st.Links, &st.Mentions, &st.Tags)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, sqliteErr(err, "note stats")
	}
	return st, nil
}

func (s *SQLite) Tags(ctx context.Context, limit int) ([]models.TagCount, error) {
	const op = "tags"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT t.name, COUNT(*) AS uses
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		GROUP BY t.id
		ORDER BY uses DESC, t.name
		LIMIT ?`, limit)
	if err != nil {
		return nil, sqliteErr(err, op)
	}
	defer rows.Close()
	out := []models.TagCount{}
	for rows.Next() {
		var tc models.TagCount
		if err := rows.Scan(&tc.Name, &tc.Count); err != nil {
			return nil, sqliteErr(err, op)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, op)
	}
	return out, nil
}

func (s *SQLite) People(ctx context.Context, limit int) ([]models.PersonCount, error) {
	const op = "people"
	rows, err := s.conn.QueryContext(ctx, `
		SELECT p.name, p.display_name, COUNT(m.note_id) AS mention_count
		FROM persons p
		LEFT JOIN mentions m ON m.person_id = p.id
		GROUP BY p.id
		ORDER BY mention_count DESC, p.name
		LIMIT ?`, limit)
	if err != nil {
		return nil, sqliteErr(err, op)
	}
	defer rows.Close()
	out := []models.PersonCount{}
	for rows.Next() {
		var pc models.PersonCount
		if err := rows.Scan(&pc.Name, &pc.DisplayName, &pc.MentionCount); err != nil {
			return nil, sqliteErr(err, op)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, op)
	}
	return out, nil
}

func (s *SQLite) FindByFilename(ctx context.Context, pattern string, limit int) ([]models.NoteRef, error) {
	return s.noteRefs(ctx, "find by filename", `
		SELECT path, title, filename, 0
		FROM notes
		WHERE placeholder = 0
		  AND (instr(lower(filename), lower(?1)) > 0 OR instr(lower(title), lower(?1)) > 0)
		ORDER BY filename DESC, path
		LIMIT ?2`, pattern, limit)
}

func (s *SQLite) Journals(ctx context.Context, start, end string, limit int) ([]models.NoteRef, error) {
	return s.noteRefs(ctx, "journals", `
		SELECT path, title, filename, 0
		FROM notes
		WHERE placeholder = 0
		  AND (instr(path, '/journal/') > 0 OR filename GLOB '[0-9][0-9][0-9][0-9]*')
		  AND filename >= ?1 AND filename <= ?2 || 'z'
		ORDER BY filename DESC, path
		LIMIT ?3`, start, end, limit)
}

func (s *SQLite) Stats(ctx context.Context) (models.GraphStats, error) {
	var st models.GraphStats
	err := s.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM notes),
			(SELECT COUNT(*) FROM persons),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM links),
			(SELECT COUNT(*) FROM mentions),
			(SELECT COUNT(*) FROM note_tags)`).
		Scan(&st.Notes, &st.Persons, &st.Tags, &st.Links, &st.Mentions, &st.TagUsages)
	if err != nil {
		return st, sqliteErr(err, "stats")
	}
	return st, nil
}

func (s *SQLite) ContentHashes(ctx context.Context) (map[string]string, error) {
	const op = "content hashes"
	rows, err := s.conn.QueryContext(ctx, `SELECT path, content_hash FROM notes WHERE placeholder = 0`)
	if err != nil {
		return nil, sqliteErr(err, op)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, sqliteErr(err, op)
		}
		out[p] = h
	}
	return out, rows.Err()
}
