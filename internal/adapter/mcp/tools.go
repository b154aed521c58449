package mcp

import (
	"context"
	"encoding/json"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/contextengine/retrieval/internal/domain/candidate"
	"github.com/contextengine/retrieval/internal/domain/relationship"
	"github.com/contextengine/retrieval/internal/retrieval"
)

// registerTools registers the three tools that make up the engine's
// boundary: a liveness check, a conversation-start bootstrap, and the main
// retrieval call.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.pingServerTool(),
		s.initializeConversationContextTool(),
		s.retrieveRelevantContextTool(),
	)
}

func (s *Server) pingServerTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("ping_server",
		mcplib.WithDescription("Liveness check; returns an empty object"),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handlePingServer}
}

func (s *Server) initializeConversationContextTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("initialize_conversation_context",
		mcplib.WithDescription("Bootstrap context for a new or resumed conversation: project overview, "+
			"architecture summary, recently discussed topics, and (given an initial query) a first "+
			"batch of relevant snippets"),
		mcplib.WithString("conversationId",
			mcplib.Description("Conversation to summarize recent topics for; omit for a fresh conversation"),
		),
		mcplib.WithString("initialQuery",
			mcplib.Description("If given, also runs retrieval for this query and returns its snippets"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleInitializeConversationContext}
}

func (s *Server) retrieveRelevantContextTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("retrieve_relevant_context",
		mcplib.WithDescription("Retrieve code, documentation, conversation history, and git history "+
			"snippets relevant to a query, ranked and compressed to fit a token budget"),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("Natural-language query to retrieve context for"),
		),
		mcplib.WithString("conversationId",
			mcplib.Required(),
			mcplib.Description("Active conversation id, scopes conversation-history sources"),
		),
		mcplib.WithNumber("tokenBudget",
			mcplib.Required(),
			mcplib.Description("Maximum estimated tokens the returned snippets may consume"),
		),
		mcplib.WithObject("retrievalParameters",
			mcplib.Description("Optional overrides: relationshipTypes (string[]), maxSeedEntities (int)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleRetrieveRelevantContext}
}

func (s *Server) handlePingServer(_ context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	return toolResultJSON([]byte("{}")), nil
}

type initializeConversationContextResult struct {
	ProjectStructureSummary         string              `json:"projectStructureSummary"`
	ArchitectureContextSummary      string              `json:"architectureContextSummary"`
	RecentConversationTopicsSummary []topicSummary      `json:"recentConversationTopicsSummary"`
	InitialQueryContextSnippets     []candidate.Snippet `json:"initialQueryContextSnippets,omitempty"`
}

type topicSummary struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

func (s *Server) handleInitializeConversationContext(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Summaries == nil {
		return mcplib.NewToolResultError("context summaries not configured"), nil
	}
	args := req.GetArguments()
	conversationID, _ := args["conversationId"].(string)
	initialQuery, _ := args["initialQuery"].(string)

	projectSummary, err := s.deps.Summaries.ProjectStructureSummary(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to load project structure summary", err), nil
	}
	archSummary, err := s.deps.Summaries.ArchitectureContextSummary(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to load architecture context summary", err), nil
	}

	result := initializeConversationContextResult{
		ProjectStructureSummary:    projectSummary,
		ArchitectureContextSummary: archSummary,
	}

	if conversationID != "" {
		topics, err := s.deps.Summaries.RecentConversationTopics(ctx, conversationID, defaultRecentTopicsLimit)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to load recent conversation topics", err), nil
		}
		for _, t := range topics {
			result.RecentConversationTopicsSummary = append(result.RecentConversationTopicsSummary, topicSummary{
				Summary:  t.Summary,
				Keywords: t.Keywords,
			})
		}
	}

	if initialQuery != "" && s.deps.Retriever != nil {
		retrieved := s.deps.Retriever.Retrieve(ctx, retrieval.Params{
			Query:          initialQuery,
			ConversationID: conversationID,
			TokenBudget:    defaultInitialQueryTokenBudget,
		})
		result.InitialQueryContextSnippets = retrieved.ContextSnippets
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(data), nil
}

const defaultInitialQueryTokenBudget = 2000

type retrieveRelevantContextResult struct {
	ContextSnippets  interface{}       `json:"contextSnippets"`
	RetrievalSummary interface{}       `json:"retrievalSummary"`
	ProcessedOk      bool              `json:"processedOk"`
	Error            *toolErrorPayload `json:"error,omitempty"`
}

type toolErrorPayload struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (s *Server) handleRetrieveRelevantContext(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()

	query, _ := args["query"].(string)
	conversationID, _ := args["conversationId"].(string)
	tokenBudgetFloat, _ := args["tokenBudget"].(float64)
	tokenBudget := int(tokenBudgetFloat)

	if query == "" || conversationID == "" || tokenBudget <= 0 {
		return toolResultJSON(mustMarshal(retrieveRelevantContextResult{
			ProcessedOk: false,
			Error: &toolErrorPayload{
				Code:    -32000,
				Message: "invalid arguments",
				Data:    map[string]any{"details": "query, conversationId, and a positive tokenBudget are required"},
			},
		})), nil
	}

	params := retrieval.Params{Query: query, ConversationID: conversationID, TokenBudget: tokenBudget}
	if rp, ok := args["retrievalParameters"].(map[string]any); ok {
		params.RelationshipTypes = parseRelationshipTypes(rp["relationshipTypes"])
		if maxSeeds, ok := rp["maxSeedEntities"].(float64); ok {
			params.MaxSeedEntities = int(maxSeeds)
		}
	}

	if s.deps.Retriever == nil {
		return toolResultJSON(mustMarshal(retrieveRelevantContextResult{
			ProcessedOk: false,
			Error: &toolErrorPayload{
				Code:    -32000,
				Message: "retriever not configured",
			},
		})), nil
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRetrievalStarted(ctx)
	}
	started := time.Now()
	result := s.deps.Retriever.Retrieve(ctx, params)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordRetrievalCompleted(ctx, time.Since(started).Seconds(), len(result.ContextSnippets))
	}

	data, err := json.Marshal(retrieveRelevantContextResult{
		ContextSnippets:  result.ContextSnippets,
		RetrievalSummary: result.RetrievalSummary,
		ProcessedOk:      true,
	})
	if err != nil {
		return toolResultJSON(mustMarshal(retrieveRelevantContextResult{
			ProcessedOk: false,
			Error: &toolErrorPayload{
				Code:    -32000,
				Message: "failed to marshal retrieval result",
				Data:    map[string]any{"details": err.Error()},
			},
		})), nil
	}
	return toolResultJSON(data), nil
}

func parseRelationshipTypes(raw any) []relationship.Type {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	types := make([]relationship.Type, 0, len(list))
	for _, v := range list {
		if str, ok := v.(string); ok {
			types = append(types, relationship.Type(str))
		}
	}
	return types
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"processedOk":false,"error":{"code":-32000,"message":"internal marshal failure"}}`)
	}
	return data
}
