package retrieval

import (
	"math"
	"strings"

	"github.com/contextengine/retrieval/internal/domain/candidate"
)

// Summary is the accounting the orchestrator reports back to the caller
// alongside the compressed snippet list.
type Summary struct {
	SnippetsFoundBeforeCompression   int    `json:"snippetsFoundBeforeCompression"`
	EstimatedTokensIn                int    `json:"estimatedTokensIn"`
	SnippetsReturnedAfterCompression int    `json:"snippetsReturnedAfterCompression"`
	EstimatedTokensOut               int    `json:"estimatedTokensOut"`
	TokenBudgetGiven                 int    `json:"tokenBudgetGiven"`
	TokenBudgetRemaining             int    `json:"tokenBudgetRemaining"`
	Error                            string `json:"error,omitempty"`
}

var textBasedSources = map[candidate.SourceType]bool{
	candidate.SourceProjectDocumentFTS:  true,
	candidate.SourceProjectDocumentKW:   true,
	candidate.SourceConversationMessage: true,
	candidate.SourceConversationTopic:   true,
	candidate.SourceGitCommit:           true,
	candidate.SourceGitCommitFileChange: true,
}

var codeBasedSources = map[candidate.SourceType]bool{
	candidate.SourceCodeEntityFTS:     true,
	candidate.SourceCodeEntityKeyword: true,
	candidate.SourceCodeEntityRelated: true,
}

// estimateTokens is a ceil(len(trim(text))/4) heuristic. Every truncation
// decision below goes through this same estimator, so swapping in a real
// tokenizer keeps admission decisions consistent.
func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	return (len(trimmed) + 3) / 4
}

func isRaw(status candidate.AIStatus) bool {
	return status != candidate.AIStatusCompleted
}

// Compress walks ranked top-to-bottom, admitting whole snippets while they
// fit the remaining token budget and attempting text/code truncation
// otherwise.
func Compress(ranked []candidate.Snippet, tokenBudget int) ([]candidate.Snippet, Summary) {
	summary := Summary{
		SnippetsFoundBeforeCompression: len(ranked),
		TokenBudgetGiven:               tokenBudget,
	}
	for _, s := range ranked {
		summary.EstimatedTokensIn += estimateTokens(s.ContentSnippet)
	}

	if tokenBudget <= 0 {
		summary.Error = "tokenBudget must be greater than zero"
		return nil, summary
	}

	remaining := tokenBudget
	out := make([]candidate.Snippet, 0, len(ranked))

	for _, s := range ranked {
		if remaining <= minUsefulTokens {
			break
		}

		t := estimateTokens(s.ContentSnippet)
		if t <= remaining {
			out = append(out, s)
			remaining -= t
			continue
		}

		switch {
		case textBasedSources[s.SourceType] && isRaw(s.AIStatus):
			if text, tokens, ok := truncateText(s.ContentSnippet, remaining); ok {
				out = append(out, admitTruncated(s, text, tokens))
				remaining -= tokens
			}
		case codeBasedSources[s.SourceType] && isRaw(s.AIStatus):
			if code, tokens, ok := truncateCode(s, remaining); ok {
				out = append(out, admitTruncated(s, code, tokens))
				remaining -= tokens
			}
		}
	}

	summary.SnippetsReturnedAfterCompression = len(out)
	for _, s := range out {
		summary.EstimatedTokensOut += estimateTokens(s.ContentSnippet)
	}
	summary.TokenBudgetRemaining = remaining
	return out, summary
}

func admitTruncated(s candidate.Snippet, content string, _ int) candidate.Snippet {
	meta := candidate.Metadata{}
	if s.Metadata != nil {
		meta = *s.Metadata
	}
	meta.Truncated = true
	meta.OriginalLen = len(s.ContentSnippet)
	meta.TruncatedLen = len(content)
	s.ContentSnippet = content
	s.Metadata = &meta
	return s
}

// truncateText cuts raw text content to a character budget derived from
// the remaining tokens, with a [50, remaining] admission window.
func truncateText(content string, remaining int) (string, int, bool) {
	target := truncationTarget(remaining)
	maxChars := 4 * target

	trimmed := strings.TrimSpace(content)
	truncated := trimmed
	if len(trimmed) > maxChars {
		truncated = trimmed[:maxChars] + "..."
	}

	tokens := estimateTokens(truncated)
	if tokens < 50 || tokens > remaining {
		return "", 0, false
	}
	return truncated, tokens, true
}

func truncationTarget(remaining int) int {
	target := int(math.Floor(float64(remaining) * 0.8))
	if target < 50 {
		target = 50
	}
	return target
}

// truncateCode picks a structure-aware truncation strategy by entityType.
func truncateCode(s candidate.Snippet, remaining int) (string, int, bool) {
	switch s.EntityType {
	case "function_declaration", "method_definition":
		return truncateFunctionOrMethod(s.ContentSnippet, remaining)
	case "class_declaration":
		return truncateClass(s.ContentSnippet, remaining)
	case "interface_declaration", "type_definition":
		return truncateLines(s.ContentSnippet, remaining, "// ... (truncated) ...")
	default:
		return truncateLines(s.ContentSnippet, remaining, "// ... (code truncated) ...")
	}
}

func truncateFunctionOrMethod(content string, remaining int) (string, int, bool) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 {
		return "", 0, false
	}
	signature := lines[0]
	body := lines[1:]
	if len(body) > 3 {
		body = body[:3]
	}

	withBody := signature
	if len(body) > 0 {
		withBody = signature + "\n" + strings.Join(body, "\n")
	}
	if tokens := estimateTokens(withBody); tokens >= 50 && tokens <= remaining {
		return withBody, tokens, true
	}

	sigOnly := signature + "\n// ... (body truncated) ..."
	if tokens := estimateTokens(sigOnly); tokens >= 50 && tokens <= remaining {
		return sigOnly, tokens, true
	}
	return "", 0, false
}

// truncateClass keeps the class header, constructor, and method
// signatures, replacing each member body with a truncation comment. Brace
// depth decides what a line is: depth 0 is the header or the class's
// closing brace, depth 1 is a direct member (field, constructor or method
// signature), anything deeper is a body and is dropped. Emission stops
// once the budget is reached.
func truncateClass(content string, remaining int) (string, int, bool) {
	const bodyMarker = "// ... (body truncated) ..."
	const classMarker = "// ... (class truncated) ..."

	lines := strings.Split(content, "\n")
	var kept []string
	depth := 0
	for _, line := range lines {
		startDepth := depth
		depth += strings.Count(line, "{") - strings.Count(line, "}")

		var emit []string
		switch {
		case startDepth <= 1:
			emit = []string{line}
			if startDepth == 1 && depth > 1 {
				// The member opens a body; stand in for it.
				emit = append(emit, leadingIndent(line)+"\t"+bodyMarker)
			}
		case depth == 1:
			// A member body closes here; keep its closing brace.
			emit = []string{line}
		default:
			continue
		}

		next := append(append([]string{}, kept...), emit...)
		if estimateTokens(strings.Join(next, "\n")+"\n"+classMarker) > remaining {
			break
		}
		kept = next
	}
	if len(kept) == 0 {
		return "", 0, false
	}
	result := strings.Join(kept, "\n") + "\n" + classMarker
	tokens := estimateTokens(result)
	if tokens < 50 || tokens > remaining {
		return "", 0, false
	}
	return result, tokens, true
}

func leadingIndent(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func truncateLines(content string, remaining int, marker string) (string, int, bool) {
	target := truncationTarget(remaining)
	targetLines := target / 10
	if targetLines < 1 {
		targetLines = 1
	}
	lines := strings.Split(content, "\n")
	if targetLines > len(lines) {
		targetLines = len(lines)
	}
	out := append(append([]string{}, lines[:targetLines]...), marker)
	result := strings.Join(out, "\n")
	tokens := estimateTokens(result)
	if tokens < 50 || tokens > remaining {
		return "", 0, false
	}
	return result, tokens, true
}
