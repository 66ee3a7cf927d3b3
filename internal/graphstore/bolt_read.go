package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/mdgraph/internal/models"
)

func (b *Bolt) GetNote(ctx context.Context, path string) (*models.Note, error) {
	return getNoteWith(ctx, sessionRunner{b.session}, path)
}

func (b *Bolt) noteRefs(ctx context.Context, op, cypher string, params map[string]any) ([]models.NoteRef, error) {
	records, err := b.collect(ctx, op, cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]models.NoteRef, 0, len(records))
	for _, rec := range records {
		out = append(out, models.NoteRef{
			Path:     getString(rec, "path"),
			Title:    getString(rec, "title"),
			Filename: getString(rec, "filename"),
			Line:     getInt(rec, "line"),
		})
	}
	return out, nil
}

func (b *Bolt) NotesByTag(ctx context.Context, tag string, limit int) ([]models.NoteRef, error) {
	return b.noteRefs(ctx, "notes by tag", `
		MATCH (n:Note)-[r:HAS_TAG]->(:Tag {name: $tag})
		RETURN n.path AS path, n.title AS title, n.filename AS filename, r.line_number AS line
		ORDER BY title, path, line
		LIMIT $limit`, map[string]any{"tag": tag, "limit": limit})
}

func (b *Bolt) NotesByPerson(ctx context.Context, person string, limit int) ([]models.NoteRef, error) {
	return b.noteRefs(ctx, "notes by person", `
		MATCH (n:Note)-[r:MENTIONS]->(:Person {name: $person})
		RETURN n.path AS path, n.title AS title, n.filename AS filename, r.line_number AS line
		ORDER BY title, path, line
		LIMIT $limit`, map[string]any{"person": person, "limit": limit})
}

func (b *Bolt) OutgoingLinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error) {
	return b.noteRefs(ctx, "outgoing links", `
		MATCH (:Note {path: $path})-[r:LINKS_TO]->(n:Note)
		RETURN n.path AS path, n.title AS title, n.filename AS filename, r.line_number AS line
		ORDER BY line, path
		LIMIT $limit`, map[string]any{"path": path, "limit": limit})
}

func (b *Bolt) Backlinks(ctx context.Context, path string, limit int) ([]models.NoteRef, error) {
	return b.noteRefs(ctx, "backlinks", `
		MATCH (n:Note)-[r:LINKS_TO]->(:Note {path: $path})
		RETURN n.path AS path, n.title AS title, n.filename AS filename, r.line_number AS line
		ORDER BY title, path, line
		LIMIT $limit`, map[string]any{"path": path, "limit": limit})
}

func (b *Bolt) Related(ctx context.Context, path string, limit int) ([]models.RelatedNote, error) {
	records, err := b.collect(ctx, "related", `
		MATCH (:Note {path: $path})-[:HAS_TAG|MENTIONS]->(shared)<-[:HAS_TAG|MENTIONS]-(n:Note)
		WHERE n.path <> $path
		WITH n, collect(DISTINCT shared) AS items
		RETURN n.path AS path, n.title AS title, size(items) AS shared_count,
			[s IN items | CASE WHEN s:Tag THEN 'Tag: ' + s.name ELSE 'Person: ' + s.name END] AS connections
		ORDER BY shared_count DESC, path
		LIMIT $limit`, map[string]any{"path": path, "limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]models.RelatedNote, 0, len(records))
	for _, rec := range records {
		out = append(out, models.RelatedNote{
			Path:        getString(rec, "path"),
			Title:       getString(rec, "title"),
			SharedCount: getInt(rec, "shared_count"),
			Connections: getStrings(rec, "connections"),
		})
	}
	return out, nil
}

func (b *Bolt) NoteTags(ctx context.Context, path string) ([]string, error) {
	records, err := b.collect(ctx, "note tags", `
		MATCH (:Note {path: $path})-[:HAS_TAG]->(t:Tag)
		RETURN DISTINCT t.name AS name ORDER BY name`, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	return stringColumn(records, "name"), nil
}

func (b *Bolt) NoteMentions(ctx context.Context, path string) ([]string, error) {
	records, err := b.collect(ctx, "note mentions", `
		MATCH (:Note {path: $path})-[:MENTIONS]->(p:Person)
		RETURN DISTINCT p.name AS name ORDER BY name`, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	return stringColumn(records, "name"), nil
}

func (b *Bolt) NoteStats(ctx context.Context, path string) (models.NoteStats, error) {
	st := models.NoteStats{Path: path}
	records, err := b.collect(ctx, "note stats", `
		MATCH (n:Note {path: $path})
		OPTIONAL MATCH (n)-[l:LINKS_TO]->()
		WITH n, count(l) AS links
		OPTIONAL MATCH (n)-[m:MENTIONS]->()
		WITH n, links, count(m) AS mentions
		OPTIONAL MATCH (n)-[t:HAS_TAG]->()
		RETURN links, mentions, count(t) AS tags`, map[string]any{"path": path})
	if err != nil || len(records) == 0 {
		return st, err
	}
	st.Links = getInt(records[0], "links")
	st.Mentions = getInt(records[0], "mentions")
	st.Tags = getInt(records[0], "tags")
	return st, nil
}

func (b *Bolt) Tags(ctx context.Context, limit int) ([]models.TagCount, error) {
	records, err := b.collect(ctx, "tags", `
		MATCH (t:Tag)<-[r:HAS_TAG]-()
		RETURN t.name AS name, count(r) AS count
		ORDER BY count DESC, name
		LIMIT $limit`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]models.TagCount, 0, len(records))
	for _, rec := range records {
		out = append(out, models.TagCount{Name: getString(rec, "name"), Count: getInt(rec, "count")})
	}
	return out, nil
}

func (b *Bolt) People(ctx context.Context, limit int) ([]models.PersonCount, error) {
	records, err := b.collect(ctx, "people", `
		MATCH (p:Person)
		OPTIONAL MATCH (p)<-[r:MENTIONS]-()
		RETURN p.name AS name, p.display_name AS display_name, count(r) AS mention_count
		ORDER BY mention_count DESC, name
		LIMIT $limit`, map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]models.PersonCount, 0, len(records))
	for _, rec := range records {
		out = append(out, models.PersonCount{
			Name:         getString(rec, "name"),
			DisplayName:  getString(rec, "display_name"),
			MentionCount: getInt(rec, "mention_count"),
		})
	}
	return out, nil
}

func (b *Bolt) FindByFilename(ctx context.Context, pattern string, limit int) ([]models.NoteRef, error) {
	return b.noteRefs(ctx, "find by filename", `
		MATCH (n:Note)
		WHERE coalesce(n.placeholder, false) = false
		  AND (toLower(n.filename) CONTAINS toLower($pattern) OR toLower(n.title) CONTAINS toLower($pattern))
		RETURN n.path AS path, n.title AS title, n.filename AS filename
		ORDER BY filename DESC, path
		LIMIT $limit`, map[string]any{"pattern": pattern, "limit": limit})
}

func (b *Bolt) Journals(ctx context.Context, start, end string, limit int) ([]models.NoteRef, error) {
	return b.noteRefs(ctx, "journals", `
		MATCH (n:Note)
		WHERE coalesce(n.placeholder, false) = false
		  AND (n.path CONTAINS '/journal/' OR n.filename =~ '^[0-9]{4}.*')
		  AND n.filename >= $start AND n.filename <= $end + 'z'
		RETURN n.path AS path, n.title AS title, n.filename AS filename
		ORDER BY filename DESC, path
		LIMIT $limit`, map[string]any{"start": start, "end": end, "limit": limit})
}

func (b *Bolt) Stats(ctx context.Context) (models.GraphStats, error) {
	var st models.GraphStats
	counts := []struct {
		dst    *int
		cypher string
	}{
		{&st.Notes, `MATCH (n:Note) RETURN count(n) AS c`},
		{&st.Persons, `MATCH (n:Person) RETURN count(n) AS c`},
		{&st.Tags, `MATCH (n:Tag) RETURN count(n) AS c`},
		{&st.Links, `MATCH ()-[r:LINKS_TO]->() RETURN count(r) AS c`},
		{&st.Mentions, `MATCH ()-[r:MENTIONS]->() RETURN count(r) AS c`},
		{&st.TagUsages, `MATCH ()-[r:HAS_TAG]->() RETURN count(r) AS c`},
	}
	for _, c := range counts {
		records, err := b.collect(ctx, "stats", c.cypher, nil)
		if err != nil {
			return st, err
		}
		if len(records) > 0 {
			*c.dst = getInt(records[0], "c")
		}
	}
	return st, nil
}

func (b *Bolt) ContentHashes(ctx context.Context) (map[string]string, error) {
	records, err := b.collect(ctx, "content hashes", `
		MATCH (n:Note) WHERE coalesce(n.placeholder, false) = false
		RETURN n.path AS path, n.content_hash AS content_hash`, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(records))
	for _, rec := range records {
		out[getString(rec, "path")] = getString(rec, "content_hash")
	}
	return out, nil
}

var _ runner = neo4j.ExplicitTransaction(nil)
