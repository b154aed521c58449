// Package mcp exposes the retrieval engine's tool surface over the Model
// Context Protocol, served on stdio for coding-assistant MCP clients: one
// registered tool per operation, and thin handlers that translate a
// CallToolRequest into a domain call and marshal the result back to JSON.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/contextengine/retrieval/internal/domain/conversation"
	"github.com/contextengine/retrieval/internal/retrieval"
)

// Retriever runs the retrieval pipeline for retrieve_relevant_context.
// Satisfied by *retrieval.Orchestrator.
type Retriever interface {
	Retrieve(ctx context.Context, p retrieval.Params) retrieval.RetrievalResult
}

// ContextSummaries backs initialize_conversation_context's three narrative
// fields plus the recent-topics lookup.
type ContextSummaries interface {
	ProjectStructureSummary(ctx context.Context) (string, error)
	ArchitectureContextSummary(ctx context.Context) (string, error)
	RecentConversationTopics(ctx context.Context, conversationID string, limit int) ([]conversation.Topic, error)
}

// RetrievalMetrics records retrieval call counters and latency; satisfied
// by *otel.Metrics, nil-able so the server runs without metrics wired.
type RetrievalMetrics interface {
	RecordRetrievalStarted(ctx context.Context)
	RecordRetrievalCompleted(ctx context.Context, durationSeconds float64, snippetsReturned int)
}

const defaultRecentTopicsLimit = 5

const instructions = "This server retrieves context for an active coding conversation.\n\n" +
	"Call initialize_conversation_context once at the start of a conversation " +
	"to get a project overview and recently discussed topics. Call " +
	"retrieve_relevant_context for any query that needs supporting code, " +
	"documentation, conversation history, or git history snippets."

// Deps wires the concrete collaborators a Server needs. Retriever and
// Summaries are both required; a nil Retriever or Summaries causes the
// corresponding tool to answer with a processedOk:false / internal error
// response rather than panicking.
type Deps struct {
	Retriever Retriever
	Summaries ContextSummaries
	Metrics   RetrievalMetrics
}

// Server wraps an mcp-go server configured with the retrieval engine's tool
// surface.
type Server struct {
	mcpServer *mcpserver.MCPServer
	deps      Deps
}

// NewServer builds the MCP server and registers its tools. Call ServeStdio
// to run it.
func NewServer(deps Deps, version string) *Server {
	s := &Server{deps: deps}

	s.mcpServer = mcpserver.NewMCPServer(
		"contextengine",
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithInstructions(instructions),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server, mainly so callers can
// wire it into other transports in tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the server on stdin/stdout until the client disconnects
// or the process is signaled.
func (s *Server) ServeStdio() error {
	slog.Info("mcp server: serving on stdio")
	return mcpserver.ServeStdio(s.mcpServer)
}

// HTTPHandler returns a streamable-HTTP handler for the same tool surface,
// for deployments that front the engine with an HTTP MCP client instead of
// (or alongside) stdio.
func (s *Server) HTTPHandler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

func toolResultJSON(data []byte) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(string(data))
}
