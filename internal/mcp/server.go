package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/embed"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/search"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/pkg/version"
)

// Deps carries the engine components the MCP tools call. Config and
// Searcher are required. Jobs, Vectors, FTS, and Embedder feed
// index_status; missing ones leave their fields empty.
type Deps struct {
	Config   *config.Config
	Searcher *search.Searcher
	Jobs     *index.Manager
	Vectors  store.VectorStore
	FTS      store.FTSStore
	Embedder embed.Embedder
}

// Server bridges MCP clients (Claude Code, Cursor) to the note engine.
type Server struct {
	mcp      *mcp.Server
	cfg      *config.Config
	searcher *search.Searcher
	jobs     *index.Manager
	vectors  store.VectorStore
	fts      store.FTSStore
	embedder embed.Embedder
}

// NewServer creates the server and registers its tools.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Searcher == nil {
		return nil, noteerr.Errorf(noteerr.KindConfig, "mcp.new",
			"config and searcher are required")
	}

	s := &Server{
		cfg:      deps.Config,
		searcher: deps.Searcher,
		jobs:     deps.Jobs,
		vectors:  deps.Vectors,
		fts:      deps.FTS,
		embedder: deps.Embedder,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "noterag",
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_notes",
		Description: "Search personal and work notes by meaning and keywords. " +
			"Returns ranked excerpts with titles, dates, and the people involved. " +
			"Use mode=query for the highest-quality results when latency is acceptable.",
	}, s.searchNotes)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "query_notes",
		Description: "Ask a question over the notes and get a grounded answer with " +
			"source citations. Use this when a summary is wanted rather than a result list.",
	}, s.queryNotes)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "person_context",
		Description: "Build 1:1 preparation for a person from work notes: meeting " +
			"count, last met date, recent topics, and their open action items.",
	}, s.personContext)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "action_items",
		Description: "Extract follow-up lines from work notes, optionally filtered " +
			"to one person. Each item carries the note date and title it came from.",
	}, s.actionItems)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "index_status",
		Description: "Report per-vault note and chunk counts, the embedding backend, " +
			"and any indexing job in flight. Use before searching to confirm the index is ready.",
	}, s.indexStatus)

	slog.Info("mcp_tools_registered", slog.Int("count", 5))
}

// Serve runs the server over stdio until the context ends. A context
// cancellation is a clean stop.
func (s *Server) Serve(ctx context.Context) error {
	slog.Info("mcp_server_starting", slog.String("version", version.Version))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	slog.Info("mcp_server_stopped")
	return nil
}
