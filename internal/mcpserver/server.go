// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the notes graph to assistants via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/query"
	"github.com/starford/mdgraph/internal/storage"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

const noteScheme = "note://"

// Server wraps the MCP server with the graph tools.
type Server struct {
	mcp     *server.MCPServer
	queries *query.Service
	engine  *graphsync.Engine
	vault   *storage.Cache
	log     *slog.Logger
}

// New creates a new MCP server with all tools registered. vault may be nil,
// in which case reindex_notes and note resources report an error.
func New(queries *query.Service, engine *graphsync.Engine, vault *storage.Cache, log *slog.Logger) *Server {
	s := &Server{queries: queries, engine: engine, vault: vault, log: log}

	s.mcp = server.NewMCPServer(
		"mdgraph",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Call get_search_instructions before searching notes."),
	)

	limit := mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum results (default %d, max %d)", query.DefaultLimit, query.MaxLimit)))
	notePathArg := mcp.WithString("note_path", mcp.Required(), mcp.Description("Note path, absolute or relative to the notes root"))

	s.mcp.AddTool(mcp.NewTool("get_search_instructions",
		mcp.WithDescription("CALL THIS FIRST before searching. Returns the recommended search strategy and which tools to use in what order."),
	), s.getSearchInstructions)

	s.mcp.AddTool(mcp.NewTool("find_by_tag",
		mcp.WithDescription("[PRIORITY 1] Find notes by hashtag. Use list_all_tags first to see available tags."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag name, with or without #")),
		limit,
	), s.findByTag)

	s.mcp.AddTool(mcp.NewTool("find_journals_by_date",
		mcp.WithDescription("[PRIORITY 2] Find journal entries and date-prefixed notes within a date range."),
		mcp.WithString("start_date", mcp.Required(), mcp.Description("Start date in YYYY-MM-DD, YYYY-MM, or YYYY format")),
		mcp.WithString("end_date", mcp.Description("End date (optional, defaults to start_date)")),
		limit,
	), s.findJournalsByDate)

	s.mcp.AddTool(mcp.NewTool("find_by_mention",
		mcp.WithDescription("[PRIORITY 3] Find notes mentioning a person (@mentions). Use list_all_persons to see known people."),
		mcp.WithString("person", mcp.Required(), mcp.Description("Person handle, with or without @")),
		limit,
	), s.findByMention)

	s.mcp.AddTool(mcp.NewTool("find_by_filename",
		mcp.WithDescription("[PRIORITY 4] Search notes by filename or title pattern."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Case-insensitive substring of the filename or title")),
		limit,
	), s.findByFilename)

	s.mcp.AddTool(mcp.NewTool("search_content",
		mcp.WithDescription("[PRIORITY 6 - LAST RESORT] Full-text search in note content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to search for")),
		limit,
	), s.searchContent)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("[PRIORITY 5] Find all notes that link TO a note via [[wikilinks]]."),
		notePathArg,
		limit,
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_related",
		mcp.WithDescription("[PRIORITY 5] Find notes related to a note by shared tags or mentions."),
		notePathArg,
		limit,
	), s.getRelated)

	s.mcp.AddTool(mcp.NewTool("get_note_context",
		mcp.WithDescription("[PRIORITY 5] Get full context for a note: outgoing links, backlinks, tags, and mentions."),
		notePathArg,
	), s.getNoteContext)

	s.mcp.AddTool(mcp.NewTool("list_all_tags",
		mcp.WithDescription("List all hashtags with usage counts."),
		limit,
	), s.listAllTags)

	s.mcp.AddTool(mcp.NewTool("list_all_persons",
		mcp.WithDescription("List all persons mentioned in notes with mention counts."),
		limit,
	), s.listAllPersons)

	s.mcp.AddTool(mcp.NewTool("query_graph",
		mcp.WithDescription("Execute a raw query on the graph store (Cypher for Memgraph/Neo4j, SQL for the embedded store)."),
		mcp.WithString("cypher", mcp.Required(), mcp.Description("Query text")),
		mcp.WithObject("params", mcp.Description("Named query parameters")),
	), s.queryGraph)

	s.mcp.AddTool(mcp.NewTool("get_graph_stats",
		mcp.WithDescription("Get counts of notes, persons, tags, links, mentions and tag usages."),
	), s.getGraphStats)

	s.mcp.AddTool(mcp.NewTool("reindex_notes",
		mcp.WithDescription("Rebuild the graph from every note in the notes directory. Clears the existing graph."),
	), s.reindexNotes)

	s.mcp.AddResource(
		mcp.NewResource("mdgraph://search-instructions", "Search Instructions",
			mcp.WithResourceDescription("Recommended order for using the search tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSearchInstructions,
	)
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(noteScheme+"{path}", "Note file",
			mcp.WithTemplateDescription("Read a markdown note file by path"),
			mcp.WithTemplateMIMEType("text/markdown"),
		),
		s.readNoteResource,
	)

	return s
}

// Listen serves MCP over in/out until ctx is cancelled or in is closed.
func (s *Server) Listen(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// notePath maps a tool argument to a graph key: absolute paths are used as
// given, relative ones are resolved against the vault.
func (s *Server) notePath(p string) string {
	p = strings.TrimSpace(p)
	if s.vault == nil || path.IsAbs(p) || p == "" {
		return p
	}
	return s.vault.NotePath(p)
}

func jsonResult(v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSearchInstructions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SearchInstructions), nil
}

func (s *Server) findByTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.NotesByTag(ctx, tag, req.GetInt("limit", 0)))
}

func (s *Server) findByMention(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	person, err := req.RequireString("person")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.NotesByPerson(ctx, person, req.GetInt("limit", 0)))
}

func (s *Server) findJournalsByDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, err := req.RequireString("start_date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end := req.GetString("end_date", "")
	return jsonResult(s.queries.JournalsByDate(ctx, start, end, req.GetInt("limit", 0)))
}

func (s *Server) findByFilename(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := req.RequireString("pattern")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.FindByFilename(ctx, pattern, req.GetInt("limit", 0)))
}

func (s *Server) searchContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.SearchContent(ctx, q, req.GetInt("limit", 0)))
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("note_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.Backlinks(ctx, s.notePath(p), req.GetInt("limit", 0)))
}

func (s *Server) getRelated(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("note_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.Related(ctx, s.notePath(p), req.GetInt("limit", 0)))
}

func (s *Server) getNoteContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := req.RequireString("note_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.queries.NoteContext(ctx, s.notePath(p)))
}

func (s *Server) listAllTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.queries.Tags(ctx, req.GetInt("limit", 0)))
}

func (s *Server) listAllPersons(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.queries.People(ctx, req.GetInt("limit", 0)))
}

func (s *Server) queryGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("cypher")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	params, _ := req.GetArguments()["params"].(map[string]any)
	return jsonResult(s.queries.Raw(ctx, q, params))
}

func (s *Server) getGraphStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.queries.GraphStats(ctx))
}

func (s *Server) reindexNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.vault == nil {
		return mcp.NewToolResultError("no notes directory configured"), nil
	}
	res, err := s.engine.ReindexVault(ctx, s.vault)
	if err == nil {
		s.log.Info("mcp: reindexed notes", slog.Int("indexed", res.Indexed), slog.Int("total", res.Total))
	}
	return jsonResult(res, err)
}

func (s *Server) readSearchInstructions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "mdgraph://search-instructions",
			MIMEType: "text/markdown",
			Text:     SearchInstructions,
		},
	}, nil
}

func (s *Server) readNoteResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	if s.vault == nil {
		return nil, fmt.Errorf("mcpserver: no notes directory configured")
	}
	p := strings.TrimPrefix(uri, noteScheme)
	if rel, ok := s.vault.RelPath(p); ok {
		p = rel
	}
	data, err := s.vault.Read(p)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: read %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/markdown",
			Text:     string(data),
		},
	}, nil
}
