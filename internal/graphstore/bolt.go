package graphstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/models"
)

// Dialect selects the index DDL understood by the server.
type Dialect string

const (
	DialectMemgraph Dialect = "memgraph"
	DialectNeo4j    Dialect = "neo4j"
)

// BoltConfig describes a Bolt endpoint.
type BoltConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Dialect  Dialect
}

// URI returns the bolt:// address.
func (c BoltConfig) URI() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// Bolt talks Cypher to Memgraph or Neo4j over one long-lived session.
type Bolt struct {
	driver  neo4j.DriverWithContext
	session neo4j.SessionWithContext
	cfg     BoltConfig
	log     *slog.Logger
}

var _ Backend = (*Bolt)(nil)

// DialBolt opens a driver, verifies connectivity and opens the session.
func DialBolt(ctx context.Context, cfg BoltConfig, log *slog.Logger) (*Bolt, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI(), auth)
	if err != nil {
		return nil, apperr.Connection(err, "graphstore: bolt driver %s", cfg.URI())
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, apperr.Connection(err, "graphstore: connect %s", cfg.URI())
	}
	if cfg.Dialect == "" {
		cfg.Dialect = DialectMemgraph
	}
	return &Bolt{
		driver:  driver,
		session: driver.NewSession(ctx, neo4j.SessionConfig{}),
		cfg:     cfg,
		log:     log,
	}, nil
}

func (b *Bolt) Name() string { return "bolt:" + b.cfg.URI() }

func (b *Bolt) Close(ctx context.Context) error {
	if err := b.session.Close(ctx); err != nil {
		b.driver.Close(ctx)
		return err
	}
	return b.driver.Close(ctx)
}

func (b *Bolt) Ping(ctx context.Context) error {
	_, err := b.collect(ctx, "ping", `RETURN 1 AS ok`, nil)
	return err
}

// EnsureSchema creates lookup indexes. Index creation errors are logged and
// ignored; most mean the index already exists.
func (b *Bolt) EnsureSchema(ctx context.Context) error {
	for _, q := range indexStatements(b.cfg.Dialect) {
		res, err := b.session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			if neo4j.IsConnectivityError(err) {
				return apperr.Connection(err, "graphstore: create index")
			}
			b.log.Debug("index creation skipped", slog.String("query", q), slog.String("error", err.Error()))
		}
	}
	return nil
}

func indexStatements(d Dialect) []string {
	if d == DialectNeo4j {
		return []string{
			`CREATE INDEX note_path IF NOT EXISTS FOR (n:Note) ON (n.path)`,
			`CREATE INDEX note_stem IF NOT EXISTS FOR (n:Note) ON (n.stem)`,
			`CREATE INDEX note_filename IF NOT EXISTS FOR (n:Note) ON (n.filename)`,
			`CREATE INDEX person_name IF NOT EXISTS FOR (p:Person) ON (p.name)`,
			`CREATE INDEX tag_name IF NOT EXISTS FOR (t:Tag) ON (t.name)`,
		}
	}
	return []string{
		`CREATE INDEX ON :Note(path)`,
		`CREATE INDEX ON :Note(stem)`,
		`CREATE INDEX ON :Note(filename)`,
		`CREATE INDEX ON :Person(name)`,
		`CREATE INDEX ON :Tag(name)`,
	}
}

// Update runs fn in an explicit transaction. Managed transactions would
// retry fn on transient failures, and retries belong to the caller.
func (b *Bolt) Update(ctx context.Context, fn func(Writer) error) error {
	tx, err := b.session.BeginTransaction(ctx)
	if err != nil {
		return boltErr(err, "begin tx")
	}
	if err := fn(&boltWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && neo4j.IsConnectivityError(rbErr) {
			return boltErr(rbErr, "rollback")
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return boltErr(err, "commit")
	}
	return nil
}

func (b *Bolt) Raw(ctx context.Context, query string, params map[string]any) (*RawResult, error) {
	res, err := b.session.Run(ctx, query, params)
	if err != nil {
		return nil, boltErr(err, "raw query")
	}
	keys, err := res.Keys()
	if err != nil {
		return nil, boltErr(err, "raw keys")
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, boltErr(err, "raw collect")
	}
	out := &RawResult{Columns: keys, Results: make([][]any, 0, len(records))}
	for _, rec := range records {
		row := make([]any, len(rec.Values))
		for i, v := range rec.Values {
			row[i] = plainValue(v)
		}
		out.Results = append(out.Results, row)
	}
	out.Count = len(out.Results)
	return out, nil
}

// plainValue renders graph entities as their property maps.
func plainValue(v any) any {
	switch x := v.(type) {
	case neo4j.Node:
		return x.Props
	case neo4j.Relationship:
		return x.Props
	case neo4j.Path:
		nodes := make([]any, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = n.Props
		}
		return nodes
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plainValue(e)
		}
		return out
	default:
		return v
	}
}

func boltErr(err error, op string) error {
	if neo4j.IsConnectivityError(err) {
		return apperr.Connection(err, "graphstore: bolt %s", op)
	}
	return apperr.Query(err, "graphstore: bolt %s", op)
}

// runner is satisfied by sessions and explicit transactions.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error)
}

// sessionRunner adapts a session, whose Run takes extra configurers.
type sessionRunner struct {
	s neo4j.SessionWithContext
}

func (r sessionRunner) Run(ctx context.Context, cypher string, params map[string]any) (neo4j.ResultWithContext, error) {
	return r.s.Run(ctx, cypher, params)
}

func collectWith(ctx context.Context, r runner, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	res, err := r.Run(ctx, cypher, params)
	if err != nil {
		return nil, boltErr(err, op)
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, boltErr(err, op)
	}
	return records, nil
}

func (b *Bolt) collect(ctx context.Context, op, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	return collectWith(ctx, sessionRunner{b.session}, op, cypher, params)
}

func getString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func getInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func getBool(rec *neo4j.Record, key string) bool {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return false
	}
	b, _ := v.(bool)
	return b
}

func getStrings(rec *neo4j.Record, key string) []string {
	out := []string{}
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return out
	}
	items, _ := v.([]any)
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringColumn(records []*neo4j.Record, key string) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, getString(rec, key))
	}
	return out
}

const noteFields = `n.path AS path, n.title AS title, n.filename AS filename, n.stem AS stem,
	n.last_modified AS last_modified, n.content_hash AS content_hash, n.placeholder AS placeholder`

func noteFromRecord(rec *neo4j.Record) *models.Note {
	return &models.Note{
		Path:         getString(rec, "path"),
		Title:        getString(rec, "title"),
		Filename:     getString(rec, "filename"),
		Stem:         getString(rec, "stem"),
		LastModified: getString(rec, "last_modified"),
		ContentHash:  getString(rec, "content_hash"),
		Placeholder:  getBool(rec, "placeholder"),
	}
}

func getNoteWith(ctx context.Context, r runner, path string) (*models.Note, error) {
	records, err := collectWith(ctx, r, "get note",
		`MATCH (n:Note {path: $path}) RETURN `+noteFields, map[string]any{"path": path})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return noteFromRecord(records[0]), nil
}
