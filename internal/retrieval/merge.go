package retrieval

import (
	"log/slog"

	"github.com/contextengine/retrieval/internal/domain/candidate"
)

// MergeRelated folds relationship-expanded snippets into the existing
// candidate list, keyed by candidate.Snippet.MergeKey. When a
// key collides, the higher-scoring snippet is kept; if it lacks a
// relationshipContext, the other snippet's context is copied onto it.
func MergeRelated(existing, related []candidate.Snippet) []candidate.Snippet {
	merged := make([]candidate.Snippet, len(existing))
	copy(merged, existing)

	index := make(map[string]int, len(merged))
	for i, s := range merged {
		index[s.MergeKey()] = i
	}

	for _, r := range related {
		key := r.MergeKey()
		idx, ok := index[key]
		if !ok {
			index[key] = len(merged)
			merged = append(merged, r)
			continue
		}

		current := merged[idx]
		kept, other := current, r
		if r.InitialScore > current.InitialScore {
			kept, other = r, current
		}
		if kept.RelationshipContext == nil {
			kept.RelationshipContext = other.RelationshipContext
		} else if other.RelationshipContext != nil {
			slog.Warn("relationship context conflict on merge", "candidate_id", kept.ID)
		}
		merged[idx] = kept
	}

	return merged
}
