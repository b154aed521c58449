package retrieval

import (
	"math"
	"strings"
	"time"

	"github.com/contextengine/retrieval/internal/domain/gitlog"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ftsScore converts a lower-is-better full-text rank into a [0,1] score.
func ftsScore(rank float64) float64 {
	return math.Max(0, 1-math.Log(rank+1)/10)
}

// keywordScore combines total match weight and match count into a [0,1] score.
func keywordScore(totalWeight float64, matchCount int) float64 {
	w := math.Min(totalWeight/10, 1)
	c := math.Min(float64(matchCount)/5, 1)
	return (w + c) / 2
}

// termMatchRatio is the fraction of terms found (as a substring, case
// insensitive) anywhere in text.
func termMatchRatio(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, t := range terms {
		if containsFold(text, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// containsFold reports whether term occurs in text, case insensitively.
func containsFold(text, term string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(term))
}

func daysSince(t time.Time, now time.Time) float64 {
	return now.Sub(t).Hours() / 24
}

// conversationMessageScore: 0.5 activity baseline + recency decay over a
// week + term-match ratio capped at 0.2.
func conversationMessageScore(isActiveConversation bool, createdAt time.Time, now time.Time, terms []string, content string) float64 {
	var score float64
	if isActiveConversation {
		score += 0.5
	}
	score += 0.3 * math.Exp(-daysSince(createdAt, now)/7)
	score += math.Min(termMatchRatio(terms, content), 1) * 0.2
	return clamp01(score)
}

// conversationTopicScore: summary match capped at 0.6, keyword match capped
// at 0.4.
func conversationTopicScore(terms []string, summary string, keywords []string) float64 {
	summaryMatch := termMatchRatio(terms, summary) * 0.6
	keywordText := strings.Join(keywords, " ")
	keywordMatch := termMatchRatio(terms, keywordText) * 0.4
	return clamp01(summaryMatch + keywordMatch)
}

// gitCommitScore: message match capped at 0.5, author match capped at 0.2,
// recency decay over a month.
func gitCommitScore(terms []string, message, author string, commitDate, now time.Time) float64 {
	messageMatch := termMatchRatio(terms, message) * 0.5
	authorMatch := termMatchRatio(terms, author) * 0.2
	recency := 0.3 * math.Exp(-daysSince(commitDate, now)/30)
	return clamp01(messageMatch + authorMatch + recency)
}

// gitFileChangeScore: path match capped at 0.6, message match capped at 0.3,
// a status bonus, and recency decay over a month.
func gitFileChangeScore(terms []string, path, message string, status gitlog.FileStatus, commitDate, now time.Time) float64 {
	pathMatch := termMatchRatio(terms, path) * 0.6
	messageMatch := termMatchRatio(terms, message) * 0.3
	var statusBonus float64
	switch status {
	case gitlog.FileModified, gitlog.FileAdded:
		statusBonus = 0.05
	case gitlog.FileDeleted:
		statusBonus = 0.02
	}
	recency := 0.2 * math.Exp(-daysSince(commitDate, now)/30)
	return clamp01(pathMatch + messageMatch + statusBonus + recency)
}
