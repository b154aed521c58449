package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/contextengine/retrieval/internal/domain/candidate"
)

// Rank computes each snippet's consolidatedScore and returns the list
// sorted by that score descending, stable on ties so candidates with equal
// scores keep their emission order.
func Rank(snippets []candidate.Snippet, now time.Time) []candidate.Snippet {
	out := make([]candidate.Snippet, len(snippets))
	copy(out, snippets)
	for i := range out {
		score := consolidatedScore(&out[i], now)
		out[i].ConsolidatedScore = &score
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].ConsolidatedScore > *out[j].ConsolidatedScore
	})
	return out
}

func consolidatedScore(s *candidate.Snippet, now time.Time) float64 {
	score := s.InitialScore * sourceWeight(s.SourceType)
	if s.HasAIStatus() {
		if w, ok := wAI[s.AIStatus]; ok {
			score *= w
		}
	}

	if rc := s.RelationshipContext; rc != nil {
		score *= relWeight(rc.RelationshipType)
		score += 0.1
		if strongRelTypes[rc.RelationshipType] {
			score += 0.05
		}
	}

	score += recencyBoost(s, now)

	return clampRange(score, 0, 2)
}

func sourceWeight(t candidate.SourceType) float64 {
	if w, ok := wSource[t]; ok {
		return w
	}
	return 1.0
}

func recencyBoost(s *candidate.Snippet, now time.Time) float64 {
	ts, ok := s.Timestamp()
	if !ok {
		return 0
	}
	ageHours := now.Sub(ts).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	switch {
	case ageHours > recencyMaxAgeForBoost:
		return 0
	case ageHours <= recencyMinAgeForDecay:
		return recencyMaxBoost
	default:
		return recencyMaxBoost * math.Exp(-ageHours/recencyDecayRateHours)
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
