package retrieval

import (
	"github.com/contextengine/retrieval/internal/domain/candidate"
)

// wSource is the per-sourceType weight applied during ranking.
var wSource = map[candidate.SourceType]float64{
	candidate.SourceCodeEntityFTS:       1.0,
	candidate.SourceCodeEntityKeyword:   0.9,
	candidate.SourceProjectDocumentFTS:  0.8,
	candidate.SourceProjectDocumentKW:   0.7,
	candidate.SourceConversationTopic:   0.7,
	candidate.SourceConversationMessage: 0.6,
	candidate.SourceGitCommit:           0.5,
	candidate.SourceGitCommitFileChange: 0.5,
	candidate.SourceCodeEntityRelated:   0.85,
}

// wAI is the per-aiStatus weight applied during ranking. Statuses not
// present here (rate_limited) leave the score unchanged.
var wAI = map[candidate.AIStatus]float64{
	candidate.AIStatusCompleted:  1.2,
	candidate.AIStatusPending:    1.0,
	candidate.AIStatusInProgress: 1.0,
	candidate.AIStatusNotNeeded:  1.0,
	candidate.AIStatusFailedAI:   0.8,
}

// wRel is the per-relationship-type weight applied to relationship-expanded
// snippets. Types absent here fall back to 1.0.
var wRel = map[candidate.RelationshipType]float64{
	candidate.RelCallsFunction:    1.1,
	candidate.RelCallsMethod:      1.1,
	candidate.RelImplementsIface:  1.2,
	candidate.RelExtendsClass:     1.2,
	candidate.RelImportsFrom:      0.9,
	candidate.RelRequiresModule:   0.9,
	candidate.RelAccessesProperty: 0.8,
	candidate.RelUsesVariable:     0.8,
	candidate.RelUsesType:         1.0,
	candidate.RelDefinesType:      1.1,
	candidate.RelReferences:       0.7,
	candidate.RelMentions:         0.6,
}

// strongRelTypes get the extra 0.05 consolidated-score bump.
var strongRelTypes = map[candidate.RelationshipType]bool{
	candidate.RelCallsFunction:   true,
	candidate.RelCallsMethod:     true,
	candidate.RelImplementsIface: true,
	candidate.RelExtendsClass:    true,
}

// relWeight returns the weight for a relationship type, defaulting to 1.0
// for types the table doesn't name. Both the expander's score propagation
// and ranking's relationship factor use this same table.
func relWeight(t candidate.RelationshipType) float64 {
	if w, ok := wRel[t]; ok {
		return w
	}
	return 1.0
}

// Recency boost parameters.
const (
	recencyMaxBoost       = 0.2
	recencyDecayRateHours = 24.0
	recencyMinAgeForDecay = 1.0
	recencyMaxAgeForBoost = 168.0
)

// Per-source result-count limits, tunable constants.
const (
	limitCodeEntityFTS     = 20
	limitDocumentFTS       = 20
	limitKeyword           = 20
	limitConversationMsg   = 10
	limitConversationTopic = 5
	limitGitCommits        = 10
	limitGitFileChanges    = 15
)

// minUsefulTokens is the compression loop's continuation floor: once the
// remaining budget drops to or below this, no further snippets are admitted.
const minUsefulTokens = 10

// defaultMaxSeedEntitiesForExpansion mirrors config.Graph's default; the
// expander prefers the value from config when one is supplied.
const defaultMaxSeedEntitiesForExpansion = 3
