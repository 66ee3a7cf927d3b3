package graphstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	path          TEXT NOT NULL UNIQUE,
	title         TEXT NOT NULL DEFAULT '',
	filename      TEXT NOT NULL DEFAULT '',
	stem          TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL DEFAULT '',
	placeholder   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS persons (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS links (
	source_id   INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	target_id   INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	line_number INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS mentions (
	note_id     INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	person_id   INTEGER NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	line_number INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS note_tags (
	note_id     INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	tag_id      INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	line_number INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS person_notes (
	person_id INTEGER NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	note_id   INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
	UNIQUE(person_id, note_id)
);

CREATE INDEX IF NOT EXISTS idx_notes_stem ON notes(stem);
CREATE INDEX IF NOT EXISTS idx_notes_filename ON notes(filename);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);
CREATE INDEX IF NOT EXISTS idx_mentions_note ON mentions(note_id);
CREATE INDEX IF NOT EXISTS idx_mentions_person ON mentions(person_id);
CREATE INDEX IF NOT EXISTS idx_note_tags_note ON note_tags(note_id);
CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_person_notes_note ON person_notes(note_id);
`

// SQLite stores the graph as node and edge tables in one database file.
type SQLite struct {
	conn *sql.DB
	path string
}

var _ Backend = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database file. The schema is applied by
// EnsureSchema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, apperr.Connection(err, "graphstore: open sqlite %s", path)
	}
	// One connection keeps transactions and PRAGMA foreign_keys on the same handle.
	conn.SetMaxOpenConns(1)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, apperr.Connection(err, "graphstore: ping sqlite %s", path)
	}
	return &SQLite{conn: conn, path: path}, nil
}

func (s *SQLite) Name() string { return "sqlite:" + s.path }

func (s *SQLite) Ping(ctx context.Context) error {
	var one int
	if err := s.conn.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return sqliteErr(err, "ping")
	}
	return nil
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, sqliteSchema); err != nil {
		return sqliteErr(err, "apply schema")
	}
	return nil
}

func (s *SQLite) Close(_ context.Context) error {
	return s.conn.Close()
}

func (s *SQLite) Update(ctx context.Context, fn func(Writer) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return sqliteErr(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&sqliteWriter{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return sqliteErr(err, "commit")
	}
	return nil
}

// Raw runs SQL. Params bind to :name, @name or $name placeholders.
func (s *SQLite) Raw(ctx context.Context, query string, params map[string]any) (*RawResult, error) {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(err, "raw query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, sqliteErr(err, "raw columns")
	}
	out := &RawResult{Columns: cols, Results: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, sqliteErr(err, "raw scan")
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Results = append(out.Results, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, "raw rows")
	}
	out.Count = len(out.Results)
	return out, nil
}

// sqliteErr classifies a driver error: a closed or unopenable database is a
// connection failure, anything else a query failure.
func sqliteErr(err error, op string) error {
	var se sqlite3.Error
	if errors.Is(err, sql.ErrConnDone) || (errors.As(err, &se) && se.Code == sqlite3.ErrCantOpen) ||
		strings.Contains(err.Error(), "database is closed") {
		return apperr.Connection(err, "graphstore: sqlite %s", op)
	}
	return apperr.Query(err, "graphstore: sqlite %s", op)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getNote(ctx context.Context, q querier, path string) (*models.Note, error) {
	var n models.Note
	err := q.QueryRowContext(ctx, `
		SELECT path, title, filename, stem, last_modified, content_hash, placeholder
		FROM notes WHERE path = ?`, path).
		Scan(&n.Path, &n.Title, &n.Filename, &n.Stem, &n.LastModified, &n.ContentHash, &n.Placeholder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, sqliteErr(err, "get note")
	}
	return &n, nil
}

func queryStrings(ctx context.Context, q querier, op, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteErr(err, op)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, sqliteErr(err, op)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, sqliteErr(err, op)
	}
	return out, nil
}

func exec(ctx context.Context, q querier, op, query string, args ...any) error {
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return sqliteErr(err, op)
	}
	return nil
}

// sqliteWriter applies mutations inside one *sql.Tx.
type sqliteWriter struct {
	q querier
}

func (w *sqliteWriter) Note(ctx context.Context, path string) (*models.Note, error) {
	return getNote(ctx, w.q, path)
}

func (w *sqliteWriter) Placeholders(ctx context.Context, path, stem string) ([]string, error) {
	return queryStrings(ctx, w.q, "placeholders", `
		SELECT path FROM notes
		WHERE placeholder = 1 AND (path = ? OR stem = ?)
		ORDER BY path`, path, stem)
}

func (w *sqliteWriter) NotesByStem(ctx context.Context, stem string) ([]string, error) {
	return queryStrings(ctx, w.q, "notes by stem",
		`SELECT path FROM notes WHERE stem = ? ORDER BY placeholder, path`, stem)
}

func (w *sqliteWriter) RenameNote(ctx context.Context, from, to string) error {
	return exec(ctx, w.q, "rename note", `UPDATE notes SET path = ? WHERE path = ?`, to, from)
}

func (w *sqliteWriter) MergePlaceholder(ctx context.Context, from, into string) error {
	if err := exec(ctx, w.q, "repoint links", `
		UPDATE links
		SET target_id = (SELECT id FROM notes WHERE path = ?)
		WHERE target_id = (SELECT id FROM notes WHERE path = ?)`, into, from); err != nil {
		return err
	}
	return exec(ctx, w.q, "drop placeholder", `DELETE FROM notes WHERE path = ? AND placeholder = 1`, from)
}

func (w *sqliteWriter) PutNote(ctx context.Context, n models.Note) error {
	return exec(ctx, w.q, "put note", `
		INSERT INTO notes (path, title, filename, stem, last_modified, content_hash, placeholder)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(path) DO UPDATE SET
			title         = excluded.title,
			filename      = excluded.filename,
			stem          = excluded.stem,
			last_modified = excluded.last_modified,
			content_hash  = excluded.content_hash,
			placeholder   = 0`,
		n.Path, n.Title, n.Filename, n.Stem, n.LastModified, n.ContentHash)
}

func (w *sqliteWriter) PutPlaceholder(ctx context.Context, path string) error {
	return exec(ctx, w.q, "put placeholder", `
		INSERT INTO notes (path, filename, stem, placeholder)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(path) DO NOTHING`,
		path, models.FilenameOf(path), models.StemOf(path))
}

func (w *sqliteWriter) ClearEdges(ctx context.Context, path string) error {
	for _, q := range []string{
		`DELETE FROM links WHERE source_id = (SELECT id FROM notes WHERE path = ?)`,
		`DELETE FROM mentions WHERE note_id = (SELECT id FROM notes WHERE path = ?)`,
		`DELETE FROM note_tags WHERE note_id = (SELECT id FROM notes WHERE path = ?)`,
		`DELETE FROM person_notes WHERE note_id = (SELECT id FROM notes WHERE path = ?)`,
	} {
		if err := exec(ctx, w.q, "clear edges", q, path); err != nil {
			return err
		}
	}
	return nil
}

func (w *sqliteWriter) Link(ctx context.Context, src, dst string, line int) error {
	return exec(ctx, w.q, "link", `
		INSERT INTO links (source_id, target_id, line_number)
		SELECT s.id, t.id, ? FROM notes s, notes t
		WHERE s.path = ? AND t.path = ?`, line, src, dst)
}

func (w *sqliteWriter) PutPerson(ctx context.Context, name, display string) error {
	initial := display
	if initial == "" {
		initial = name
	}
	return exec(ctx, w.q, "put person", `
		INSERT INTO persons (name, display_name) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			display_name = COALESCE(NULLIF(?, ''), persons.display_name)`,
		name, initial, display)
}

func (w *sqliteWriter) Mention(ctx context.Context, path, person string, line int) error {
	return exec(ctx, w.q, "mention", `
		INSERT INTO mentions (note_id, person_id, line_number)
		SELECT n.id, p.id, ? FROM notes n, persons p
		WHERE n.path = ? AND p.name = ?`, line, path, person)
}

func (w *sqliteWriter) PersonNote(ctx context.Context, person, path string) error {
	return exec(ctx, w.q, "person note", `
		INSERT OR IGNORE INTO person_notes (person_id, note_id)
		SELECT p.id, n.id FROM persons p, notes n
		WHERE p.name = ? AND n.path = ?`, person, path)
}

func (w *sqliteWriter) PutTag(ctx context.Context, name string) error {
	return exec(ctx, w.q, "put tag", `INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
}

func (w *sqliteWriter) Tag(ctx context.Context, path, tag string, line int) error {
	return exec(ctx, w.q, "tag", `
		INSERT INTO note_tags (note_id, tag_id, line_number)
		SELECT n.id, t.id, ? FROM notes n, tags t
		WHERE n.path = ? AND t.name = ?`, line, path, tag)
}

func (w *sqliteWriter) DeleteNote(ctx context.Context, path string) error {
	return exec(ctx, w.q, "delete note", `DELETE FROM notes WHERE path = ?`, path)
}

func (w *sqliteWriter) PruneOrphans(ctx context.Context) error {
	if err := exec(ctx, w.q, "prune persons", `
		DELETE FROM persons
		WHERE id NOT IN (SELECT person_id FROM mentions)
		  AND id NOT IN (SELECT person_id FROM person_notes)`); err != nil {
		return err
	}
	return exec(ctx, w.q, "prune tags", `DELETE FROM tags WHERE id NOT IN (SELECT tag_id FROM note_tags)`)
}

func (w *sqliteWriter) Clear(ctx context.Context) error {
	for _, q := range []string{`DELETE FROM notes`, `DELETE FROM persons`, `DELETE FROM tags`} {
		if err := exec(ctx, w.q, "clear", q); err != nil {
			return err
		}
	}
	return nil
}
