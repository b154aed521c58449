package retrieval

import (
	"reflect"
	"testing"

	"github.com/contextengine/retrieval/internal/domain/candidate"
)

func relCtx(seedID string) *candidate.RelationshipContext {
	return &candidate.RelationshipContext{
		RelatedToSeedEntityID: seedID,
		RelationshipType:      candidate.RelCallsFunction,
		Direction:             candidate.DirectionOutgoing,
	}
}

func TestMergeRelated_InsertsNewEntities(t *testing.T) {
	existing := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityFTS, ContentSnippet: "a", InitialScore: 0.9},
	}
	related := []candidate.Snippet{
		{ID: "e2", SourceType: candidate.SourceCodeEntityRelated, ContentSnippet: "b", InitialScore: 0.6, RelationshipContext: relCtx("e1")},
	}
	merged := MergeRelated(existing, related)

	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2", len(merged))
	}
	if merged[1].ID != "e2" || merged[1].RelationshipContext == nil {
		t.Errorf("merged[1] = %+v, want related e2 with context", merged[1])
	}
}

func TestMergeRelated_CollisionKeepsHigherScoreAndCopiesContext(t *testing.T) {
	existing := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityFTS, ContentSnippet: "from fts", InitialScore: 0.9},
	}
	related := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityRelated, ContentSnippet: "from expansion", InitialScore: 0.5, RelationshipContext: relCtx("seed")},
	}
	merged := MergeRelated(existing, related)

	if len(merged) != 1 {
		t.Fatalf("len = %d, want 1 (same entity key)", len(merged))
	}
	got := merged[0]
	if got.InitialScore != 0.9 || got.ContentSnippet != "from fts" {
		t.Errorf("kept snippet = %+v, want the higher-scoring FTS one", got)
	}
	if got.RelationshipContext == nil || got.RelationshipContext.RelatedToSeedEntityID != "seed" {
		t.Error("context must be copied onto the kept snippet")
	}
}

func TestMergeRelated_CollisionPrefersHigherScoringRelated(t *testing.T) {
	existing := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityKeyword, ContentSnippet: "kw", InitialScore: 0.3},
	}
	related := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityRelated, ContentSnippet: "rel", InitialScore: 0.8, RelationshipContext: relCtx("seed")},
	}
	merged := MergeRelated(existing, related)

	if merged[0].InitialScore != 0.8 || merged[0].SourceType != candidate.SourceCodeEntityRelated {
		t.Errorf("kept = %+v, want the higher-scoring related snippet", merged[0])
	}
}

func TestMergeRelated_NonEntitySourcesNeverCollide(t *testing.T) {
	// A conversation message and a code entity can share a raw id; their
	// merge keys must keep them apart.
	existing := []candidate.Snippet{
		{ID: "x1", SourceType: candidate.SourceConversationMessage, ContentSnippet: "msg", InitialScore: 0.5},
	}
	related := []candidate.Snippet{
		{ID: "x1", SourceType: candidate.SourceCodeEntityRelated, ContentSnippet: "ent", InitialScore: 0.6, RelationshipContext: relCtx("seed")},
	}
	merged := MergeRelated(existing, related)
	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2 (distinct merge keys)", len(merged))
	}
}

func TestMergeRelated_Idempotent(t *testing.T) {
	existing := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityFTS, ContentSnippet: "a", InitialScore: 0.9},
		{ID: "m1", SourceType: candidate.SourceConversationMessage, ContentSnippet: "m", InitialScore: 0.4},
	}
	related := []candidate.Snippet{
		{ID: "e1", SourceType: candidate.SourceCodeEntityRelated, ContentSnippet: "r", InitialScore: 0.5, RelationshipContext: relCtx("seed")},
		{ID: "e2", SourceType: candidate.SourceCodeEntityRelated, ContentSnippet: "n", InitialScore: 0.6, RelationshipContext: relCtx("seed")},
	}

	once := MergeRelated(existing, related)
	twice := MergeRelated(once, related)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("merge not idempotent:\nonce  = %+v\ntwice = %+v", once, twice)
	}
}
