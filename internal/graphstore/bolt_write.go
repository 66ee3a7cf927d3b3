package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/mdgraph/internal/models"
)

// boltWriter applies mutations inside one explicit transaction.
type boltWriter struct {
	tx neo4j.ExplicitTransaction
}

func (w *boltWriter) run(ctx context.Context, op, cypher string, params map[string]any) error {
	res, err := w.tx.Run(ctx, cypher, params)
	if err != nil {
		return boltErr(err, op)
	}
	if _, err := res.Consume(ctx); err != nil {
		return boltErr(err, op)
	}
	return nil
}

func (w *boltWriter) Note(ctx context.Context, path string) (*models.Note, error) {
	return getNoteWith(ctx, w.tx, path)
}

func (w *boltWriter) Placeholders(ctx context.Context, path, stem string) ([]string, error) {
	records, err := collectWith(ctx, w.tx, "placeholders", `
		MATCH (n:Note)
		WHERE n.placeholder = true AND (n.path = $path OR n.stem = $stem)
		RETURN n.path AS path ORDER BY path`,
		map[string]any{"path": path, "stem": stem})
	if err != nil {
		return nil, err
	}
	return stringColumn(records, "path"), nil
}

func (w *boltWriter) NotesByStem(ctx context.Context, stem string) ([]string, error) {
	records, err := collectWith(ctx, w.tx, "notes by stem", `
		MATCH (n:Note {stem: $stem})
		RETURN n.path AS path, coalesce(n.placeholder, false) AS placeholder
		ORDER BY placeholder, path`,
		map[string]any{"stem": stem})
	if err != nil {
		return nil, err
	}
	return stringColumn(records, "path"), nil
}

func (w *boltWriter) RenameNote(ctx context.Context, from, to string) error {
	return w.run(ctx, "rename note",
		`MATCH (n:Note {path: $from}) SET n.path = $to`,
		map[string]any{"from": from, "to": to})
}

func (w *boltWriter) MergePlaceholder(ctx context.Context, from, into string) error {
	params := map[string]any{"from": from, "into": into}
	if err := w.run(ctx, "repoint links", `
		MATCH (s:Note)-[r:LINKS_TO]->(:Note {path: $from})
		MATCH (n:Note {path: $into})
		CREATE (s)-[:LINKS_TO {line_number: r.line_number}]->(n)`, params); err != nil {
		return err
	}
	return w.run(ctx, "drop placeholder",
		`MATCH (p:Note {path: $from}) WHERE p.placeholder = true DETACH DELETE p`, params)
}

func (w *boltWriter) PutNote(ctx context.Context, n models.Note) error {
	return w.run(ctx, "put note", `
		MERGE (n:Note {path: $path})
		SET n.title = $title,
			n.filename = $filename,
			n.stem = $stem,
			n.last_modified = $last_modified,
			n.content_hash = $content_hash,
			n.placeholder = false`,
		map[string]any{
			"path":          n.Path,
			"title":         n.Title,
			"filename":      n.Filename,
			"stem":          n.Stem,
			"last_modified": n.LastModified,
			"content_hash":  n.ContentHash,
		})
}

func (w *boltWriter) PutPlaceholder(ctx context.Context, path string) error {
	return w.run(ctx, "put placeholder", `
		MERGE (n:Note {path: $path})
		ON CREATE SET n.filename = $filename, n.stem = $stem, n.title = '', n.placeholder = true`,
		map[string]any{"path": path, "filename": models.FilenameOf(path), "stem": models.StemOf(path)})
}

func (w *boltWriter) ClearEdges(ctx context.Context, path string) error {
	params := map[string]any{"path": path}
	if err := w.run(ctx, "clear edges",
		`MATCH (:Note {path: $path})-[r:LINKS_TO|MENTIONS|HAS_TAG]->() DELETE r`, params); err != nil {
		return err
	}
	return w.run(ctx, "clear person notes",
		`MATCH (:Person)-[r:HAS_NOTE]->(:Note {path: $path}) DELETE r`, params)
}

func (w *boltWriter) Link(ctx context.Context, src, dst string, line int) error {
	return w.run(ctx, "link", `
		MATCH (s:Note {path: $src}), (t:Note {path: $dst})
		CREATE (s)-[:LINKS_TO {line_number: $line}]->(t)`,
		map[string]any{"src": src, "dst": dst, "line": line})
}

func (w *boltWriter) PutPerson(ctx context.Context, name, display string) error {
	return w.run(ctx, "put person", `
		MERGE (p:Person {name: $name})
		SET p.display_name = CASE WHEN $display = '' THEN coalesce(p.display_name, $name) ELSE $display END`,
		map[string]any{"name": name, "display": display})
}

func (w *boltWriter) Mention(ctx context.Context, path, person string, line int) error {
	return w.run(ctx, "mention", `
		MATCH (n:Note {path: $path}), (p:Person {name: $person})
		CREATE (n)-[:MENTIONS {line_number: $line}]->(p)`,
		map[string]any{"path": path, "person": person, "line": line})
}

func (w *boltWriter) PersonNote(ctx context.Context, person, path string) error {
	return w.run(ctx, "person note", `
		MATCH (p:Person {name: $person}), (n:Note {path: $path})
		MERGE (p)-[:HAS_NOTE]->(n)`,
		map[string]any{"person": person, "path": path})
}

func (w *boltWriter) PutTag(ctx context.Context, name string) error {
	return w.run(ctx, "put tag", `MERGE (:Tag {name: $name})`, map[string]any{"name": name})
}

func (w *boltWriter) Tag(ctx context.Context, path, tag string, line int) error {
	return w.run(ctx, "tag", `
		MATCH (n:Note {path: $path}), (t:Tag {name: $tag})
		CREATE (n)-[:HAS_TAG {line_number: $line}]->(t)`,
		map[string]any{"path": path, "tag": tag, "line": line})
}

func (w *boltWriter) DeleteNote(ctx context.Context, path string) error {
	return w.run(ctx, "delete note",
		`MATCH (n:Note {path: $path}) DETACH DELETE n`, map[string]any{"path": path})
}

func (w *boltWriter) PruneOrphans(ctx context.Context) error {
	if err := w.run(ctx, "prune persons", `MATCH (p:Person) WHERE NOT (p)--() DELETE p`, nil); err != nil {
		return err
	}
	return w.run(ctx, "prune tags", `MATCH (t:Tag) WHERE NOT (t)--() DELETE t`, nil)
}

func (w *boltWriter) Clear(ctx context.Context) error {
	return w.run(ctx, "clear",
		`MATCH (n) WHERE n:Note OR n:Person OR n:Tag DETACH DELETE n`, nil)
}
