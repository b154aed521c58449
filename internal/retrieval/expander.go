package retrieval

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/contextengine/retrieval/internal/domain/candidate"
	"github.com/contextengine/retrieval/internal/domain/relationship"
	"github.com/contextengine/retrieval/internal/port/database"
)

// Expander performs graph expansion: seed selection over the current
// candidate pool, one-hop relationship traversal, and score propagation
// onto newly emitted code_entity_related snippets.
type Expander struct {
	store database.Store
}

// NewExpander creates an Expander backed by store.
func NewExpander(store database.Store) *Expander {
	return &Expander{store: store}
}

// Expand selects up to maxSeeds top-scoring code-entity candidates from
// snippets, fetches their one-hop relationships (filtered to relTypes, or
// the default whitelist when relTypes is empty), and returns one
// code_entity_related snippet per unique related entity discovered across
// all seeds.
func (e *Expander) Expand(ctx context.Context, snippets []candidate.Snippet, tok Result, relTypes []relationship.Type, maxSeeds int) []candidate.Snippet {
	if maxSeeds <= 0 {
		maxSeeds = defaultMaxSeedEntitiesForExpansion
	}
	seeds := selectSeeds(snippets, maxSeeds)
	if len(seeds) == 0 {
		return nil
	}
	if len(relTypes) == 0 {
		relTypes = defaultRelationshipTypes()
	}

	var out []candidate.Snippet
	seen := make(map[string]bool)

	for _, seed := range seeds {
		rels, err := e.store.RelatedEntities(ctx, seed.ID, relTypes)
		if err != nil {
			slog.Warn("relationship expansion failed", "seed_id", seed.ID, "error", err)
			continue
		}
		for _, r := range rels {
			otherID, outgoing, ok := r.OtherEndpoint(seed.ID)
			if !ok || seen[otherID] {
				continue
			}
			ent, err := e.store.GetCodeEntity(ctx, otherID)
			if err != nil {
				slog.Warn("relationship hydration miss", "entity_id", otherID, "error", err)
				continue
			}
			seen[otherID] = true

			direction := candidate.DirectionOutgoing
			if !outgoing {
				direction = candidate.DirectionIncoming
			}

			base := seed.InitialScore * 0.7
			if seed.InitialScore == 0 {
				base = 0.5
			}
			queryBoost := matchBoost(tok.SearchTerms, ent.Name, ent.Content, ent.FilePath)
			score := clamp01(base*relWeight(candidate.RelationshipType(r.Type)) + queryBoost)

			out = append(out, candidate.Snippet{
				ID:             ent.ID,
				SourceType:     candidate.SourceCodeEntityRelated,
				ContentSnippet: selectContent(candidate.AIStatus(ent.AIStatus), ent.Summary, "", ent.Content),
				InitialScore:   score,
				FilePath:       ent.FilePath,
				EntityName:     ent.Name,
				EntityType:     string(ent.EntityType),
				Language:       ent.Language,
				AIStatus:       candidate.AIStatus(ent.AIStatus),
				TimestampVal:   timePtr(ent.UpdatedAt),
				Metadata:       &candidate.Metadata{Keywords: ent.Keywords, StartLine: ent.StartLine, EndLine: ent.EndLine},
				RelationshipContext: &candidate.RelationshipContext{
					RelatedToSeedEntityID: seed.ID,
					RelationshipType:      candidate.RelationshipType(r.Type),
					Direction:             direction,
				},
			})
		}
	}
	return out
}

func selectSeeds(snippets []candidate.Snippet, maxSeeds int) []candidate.Snippet {
	var codeEntities []candidate.Snippet
	for _, s := range snippets {
		if s.SourceType == candidate.SourceCodeEntityFTS || s.SourceType == candidate.SourceCodeEntityKeyword {
			codeEntities = append(codeEntities, s)
		}
	}
	sort.SliceStable(codeEntities, func(i, j int) bool {
		return codeEntities[i].InitialScore > codeEntities[j].InitialScore
	})
	if len(codeEntities) > maxSeeds {
		codeEntities = codeEntities[:maxSeeds]
	}
	return codeEntities
}

func defaultRelationshipTypes() []relationship.Type {
	out := make([]relationship.Type, len(candidate.DefaultExpansionRelationshipTypes))
	for i, t := range candidate.DefaultExpansionRelationshipTypes {
		out[i] = relationship.Type(t)
	}
	return out
}

// matchBoost computes min(matchingTerms/|terms|, 1) * 0.2 over the given
// fields joined together.
func matchBoost(terms []string, fields ...string) float64 {
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, t := range terms {
		for _, f := range fields {
			if containsFold(f, t) {
				matched++
				break
			}
		}
	}
	return math.Min(float64(matched)/float64(len(terms)), 1) * 0.2
}
