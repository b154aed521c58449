// Package ai defines the port the job manager dispatches enrichment work
// through. The concrete provider (the external large-language-model
// service) stays behind this interface; the package only models the call
// shape and the error kinds the poller switches on.
package ai

import "context"

// EntityEnrichmentRequest carries the raw content the provider summarizes
// and keyword-extracts for a code entity or project document.
type EntityEnrichmentRequest struct {
	EntityID string
	Content  string
	Language string
}

// EntityEnrichmentResult is the provider's response to an enrichment request.
type EntityEnrichmentResult struct {
	Summary  string
	Keywords []string
}

// TopicGenerationRequest carries the conversation messages a topic summary
// is generated from.
type TopicGenerationRequest struct {
	ConversationID string
	Messages       []string
}

// GeneratedTopic is one AI-produced conversation topic.
type GeneratedTopic struct {
	Summary  string
	Keywords []string
}

// Provider is the port the job manager's handlers call to fulfill
// enrich_entity_summary_keywords and generate_topics jobs. Implementations
// return the job package's sentinel error kinds (RateLimitError,
// ProviderError, ErrPayloadParse) so the poller's dispatch logic can
// classify outcomes without depending on this package.
type Provider interface {
	EnrichEntitySummaryKeywords(ctx context.Context, req EntityEnrichmentRequest) (EntityEnrichmentResult, error)
	GenerateTopics(ctx context.Context, req TopicGenerationRequest) ([]GeneratedTopic, error)
}
