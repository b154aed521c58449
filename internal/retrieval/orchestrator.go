package retrieval

import (
	"context"
	"time"

	"github.com/contextengine/retrieval/internal/domain/candidate"
	"github.com/contextengine/retrieval/internal/domain/relationship"
)

// Spans abstracts span creation for the orchestrator's stages, kept as a
// narrow interface so this package stays free of an otel import.
type Spans interface {
	StartRetrievalSpan(ctx context.Context, conversationID, query string, tokenBudget int) (context.Context, func())
	StartStageSpan(ctx context.Context, stage string) (context.Context, func())
}

// Params carries one retrieve_relevant_context call's inputs.
type Params struct {
	Query          string
	ConversationID string
	TokenBudget    int
	// RelationshipTypes overrides the default relationship-expansion type
	// set when non-empty (the retrievalParameters override).
	RelationshipTypes []relationship.Type
	MaxSeedEntities   int
}

// Orchestrator sequences tokenize, generate, expand, merge, rank, and
// compress into one retrieve_relevant_context call.
type Orchestrator struct {
	generator *Generator
	expander  *Expander
	spans     Spans

	defaultMaxSeedEntities int
}

// NewOrchestrator creates an Orchestrator. spans may be nil.
func NewOrchestrator(generator *Generator, expander *Expander, spans Spans, defaultMaxSeedEntities int) *Orchestrator {
	return &Orchestrator{
		generator:              generator,
		expander:               expander,
		spans:                  spans,
		defaultMaxSeedEntities: defaultMaxSeedEntities,
	}
}

// RetrievalResult is what retrieve_relevant_context returns on success.
type RetrievalResult struct {
	ContextSnippets  []candidate.Snippet
	RetrievalSummary Summary
}

// Retrieve runs the pipeline from tokenization through compression. It
// always returns a valid RetrievalResult, even when every subsystem yields
// nothing - partial or total absence of candidates is "no context found",
// never an error. Retrieval succeeds on whatever content exists.
func (o *Orchestrator) Retrieve(ctx context.Context, p Params) RetrievalResult {
	if o.spans != nil {
		var end func()
		ctx, end = o.spans.StartRetrievalSpan(ctx, p.ConversationID, p.Query, p.TokenBudget)
		defer end()
	}

	now := time.Now()

	o.stage(ctx, "tokenize", func(context.Context) {})
	tok := Tokenize(p.Query)

	var generated []candidate.Snippet
	o.stage(ctx, "generate", func(stageCtx context.Context) {
		generated = o.generator.Generate(stageCtx, tok, p.ConversationID, now)
	})

	maxSeeds := p.MaxSeedEntities
	if maxSeeds <= 0 {
		maxSeeds = o.defaultMaxSeedEntities
	}
	relTypes := p.RelationshipTypes
	if len(relTypes) == 0 {
		relTypes = defaultRelationshipTypes()
	}

	var expanded []candidate.Snippet
	o.stage(ctx, "expand", func(stageCtx context.Context) {
		expanded = o.expander.Expand(stageCtx, generated, tok, relTypes, maxSeeds)
	})

	merged := MergeRelated(generated, expanded)

	var ranked []candidate.Snippet
	o.stage(ctx, "rank", func(context.Context) {
		ranked = Rank(merged, now)
	})

	var compressed []candidate.Snippet
	var summary Summary
	o.stage(ctx, "compress", func(context.Context) {
		compressed, summary = Compress(ranked, p.TokenBudget)
	})

	return RetrievalResult{ContextSnippets: compressed, RetrievalSummary: summary}
}

// stage runs fn wrapped in a per-stage span when spans are wired.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context)) {
	if o.spans == nil {
		fn(ctx)
		return
	}
	stageCtx, end := o.spans.StartStageSpan(ctx, name)
	defer end()
	fn(stageCtx)
}
