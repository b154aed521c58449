// Package retrieval implements the context retrieval pipeline: query
// tokenization, per-source candidate generation, relationship expansion,
// consolidated ranking, and token-budgeted compression.
package retrieval

import (
	"regexp"
	"strings"
)

// stopWords is a fixed English stop-word list, extended with a few terms
// common enough in agent queries to be noise on their own.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "shall": true, "can": true, "to": true, "of": true,
	"in": true, "for": true, "on": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "through": true,
	"and": true, "or": true, "but": true, "not": true, "no": true,
	"if": true, "then": true, "else": true, "when": true, "up": true,
	"out": true, "that": true, "this": true, "it": true, "its": true,
	"me": true, "my": true, "we": true, "you": true, "your": true,
}

// significantShortTokens are short programming tokens that isSignificant
// always keeps. Every entry is at least two characters long and absent from
// stopWords, so the length and stop-word check keeps them as well.
var significantShortTokens = map[string]bool{
	"js": true, "ts": true, "go": true, "py": true, "sql": true, "css": true,
	"dom": true, "api": true, "url": true, "id": true, "ai": true, "ml": true,
	"db": true, "os": true, "io": true,
}

// gitIntentWords trigger gitIntent when present anywhere in the raw query.
var gitIntentWords = map[string]bool{
	"commit": true, "history": true, "change": true, "log": true,
	"author": true, "blame": true, "branch": true, "merge": true,
	"diff": true, "revision": true, "repo": true,
}

var codeOrDocExtensions = []string{
	".go", ".py", ".js", ".ts", ".tsx", ".jsx", ".java", ".rb", ".rs", ".c",
	".cpp", ".h", ".hpp", ".cs", ".php", ".md", ".yaml", ".yml", ".json",
	".sql", ".sh",
}

var hashLikeTokenPattern = regexp.MustCompile(`\b[0-9a-f]{7,}\b`)

// ftsMetacharacters are escaped before tokens are joined into an FTS
// expression, since tsquery treats them as operators.
var ftsMetacharacters = regexp.MustCompile(`[&|!():*'<>]`)

// Result is the output of tokenizing one raw query string.
type Result struct {
	SearchTerms   []string
	FTSExpression string
	GitIntent     bool
}

// Tokenize splits a raw query into lowercase search terms, builds a
// tsquery-compatible FTS expression, and flags whether the query expresses
// git intent. An empty or all-stop-word query yields a zero Result; callers
// treat that as "no candidates" for the affected stage.
func Tokenize(query string) Result {
	if strings.TrimSpace(query) == "" {
		return Result{}
	}

	rawTerms := splitQuery(query)
	terms := make([]string, 0, len(rawTerms))
	for _, t := range rawTerms {
		if isSignificant(t) {
			terms = append(terms, t)
		}
	}

	return Result{
		SearchTerms:   terms,
		FTSExpression: buildFTSExpression(terms),
		GitIntent:     detectGitIntent(query, rawTerms),
	}
}

// splitQuery lowercases the query and splits on whitespace and punctuation,
// keeping only alphanumeric runs (plus the path/hash-bearing tokens
// detectGitIntent inspects separately via the raw query).
func splitQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '/', r == '.', r == '-':
			return false
		default:
			return true
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "._-/")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func isSignificant(term string) bool {
	alnum := strings.Trim(term, "._-/")
	if alnum == "" {
		return false
	}
	if len(alnum) >= 2 && !stopWords[alnum] {
		return true
	}
	return significantShortTokens[alnum]
}

func buildFTSExpression(terms []string) string {
	if len(terms) == 0 {
		return ""
	}
	escaped := make([]string, len(terms))
	for i, t := range terms {
		escaped[i] = ftsMetacharacters.ReplaceAllString(t, `\$0`)
	}
	return strings.Join(escaped, " | ")
}

func detectGitIntent(rawQuery string, terms []string) bool {
	lower := strings.ToLower(rawQuery)
	for word := range gitIntentWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	for _, t := range terms {
		if strings.Contains(t, "/") {
			return true
		}
		for _, ext := range codeOrDocExtensions {
			if strings.HasSuffix(t, ext) {
				return true
			}
		}
		if hashLikeTokenPattern.MatchString(t) {
			return true
		}
	}
	return false
}
