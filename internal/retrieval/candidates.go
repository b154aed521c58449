package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextengine/retrieval/internal/domain/candidate"
	"github.com/contextengine/retrieval/internal/domain/conversation"
	"github.com/contextengine/retrieval/internal/domain/gitlog"
	"github.com/contextengine/retrieval/internal/port/database"
)

// Generator runs the seven per-source searches, hydrates each hit to its
// full record, and emits the uniform candidate.Snippet stream the expander
// and ranker consume.
type Generator struct {
	store database.Store
}

// NewGenerator creates a Generator backed by store.
func NewGenerator(store database.Store) *Generator {
	return &Generator{store: store}
}

type sourceHits struct {
	codeFTS        []candidate.Snippet
	docFTS         []candidate.Snippet
	keyword        []candidate.Snippet
	convMessages   []candidate.Snippet
	convTopics     []candidate.Snippet
	gitCommits     []candidate.Snippet
	gitFileChanges []candidate.Snippet
}

// Generate runs all applicable source searches concurrently, hydrates their
// hits, and returns a deduplicated candidate snippet list. Per-source
// failures are logged and contribute no snippets; Generate itself never
// returns an error.
func (g *Generator) Generate(ctx context.Context, tok Result, conversationID string, now time.Time) []candidate.Snippet {
	var out sourceHits
	grp, gctx := errgroup.WithContext(ctx)

	if tok.FTSExpression != "" {
		grp.Go(func() error {
			out.codeFTS = g.searchCodeEntitiesFTS(gctx, tok)
			return nil
		})
		grp.Go(func() error {
			out.docFTS = g.searchDocumentsFTS(gctx, tok)
			return nil
		})
	}
	if len(tok.SearchTerms) > 0 {
		grp.Go(func() error {
			out.keyword = g.searchKeyword(gctx, tok)
			return nil
		})
	}
	if conversationID != "" {
		grp.Go(func() error {
			out.convMessages = g.searchConversationMessages(gctx, conversationID, tok, now)
			return nil
		})
		grp.Go(func() error {
			out.convTopics = g.searchConversationTopics(gctx, conversationID, tok)
			return nil
		})
	}
	// Git searches always run, whatever gitIntent says; file-change search
	// narrows to path-like terms when any exist.
	grp.Go(func() error {
		out.gitCommits = g.searchGitCommits(gctx, tok, now)
		return nil
	})
	grp.Go(func() error {
		out.gitFileChanges = g.searchGitFileChanges(gctx, tok, now)
		return nil
	})

	_ = grp.Wait()

	snippets := make([]candidate.Snippet, 0,
		len(out.codeFTS)+len(out.docFTS)+len(out.keyword)+len(out.convMessages)+len(out.convTopics)+len(out.gitCommits)+len(out.gitFileChanges))

	// FTS sources are appended first so the later keyword-dedup pass sees
	// them as already emitted; the FTS-derived snippet wins.
	emitted := make(map[string]bool, len(out.codeFTS)+len(out.docFTS))
	for _, s := range out.codeFTS {
		emitted[s.ID] = true
		snippets = append(snippets, s)
	}
	for _, s := range out.docFTS {
		emitted[s.ID] = true
		snippets = append(snippets, s)
	}
	for _, s := range out.keyword {
		if emitted[s.ID] {
			continue
		}
		snippets = append(snippets, s)
	}
	snippets = append(snippets, out.convMessages...)
	snippets = append(snippets, out.convTopics...)
	snippets = append(snippets, out.gitCommits...)
	snippets = append(snippets, out.gitFileChanges...)

	return snippets
}

func (g *Generator) searchCodeEntitiesFTS(ctx context.Context, tok Result) []candidate.Snippet {
	hits, err := g.store.SearchCodeEntitiesFTS(ctx, tok.FTSExpression, limitCodeEntityFTS)
	if err != nil {
		slog.Warn("code entity fts search failed", "error", err)
		return nil
	}
	out := make([]candidate.Snippet, 0, len(hits))
	for _, h := range hits {
		e, err := g.store.GetCodeEntity(ctx, h.EntityID)
		if err != nil {
			slog.Warn("code entity fts hydration miss", "entity_id", h.EntityID, "error", err)
			continue
		}
		out = append(out, candidate.Snippet{
			ID:             e.ID,
			SourceType:     candidate.SourceCodeEntityFTS,
			ContentSnippet: selectContent(candidate.AIStatus(e.AIStatus), e.Summary, h.Highlight, e.Content),
			InitialScore:   ftsScore(h.Rank),
			FilePath:       e.FilePath,
			EntityName:     e.Name,
			EntityType:     string(e.EntityType),
			Language:       e.Language,
			AIStatus:       candidate.AIStatus(e.AIStatus),
			TimestampVal:   timePtr(e.UpdatedAt),
			Metadata:       &candidate.Metadata{Keywords: e.Keywords, StartLine: e.StartLine, EndLine: e.EndLine},
		})
	}
	return out
}

func (g *Generator) searchDocumentsFTS(ctx context.Context, tok Result) []candidate.Snippet {
	hits, err := g.store.SearchDocumentsFTS(ctx, tok.FTSExpression, limitDocumentFTS)
	if err != nil {
		slog.Warn("document fts search failed", "error", err)
		return nil
	}
	out := make([]candidate.Snippet, 0, len(hits))
	for _, h := range hits {
		d, err := g.store.GetProjectDocument(ctx, h.DocumentID)
		if err != nil {
			slog.Warn("document fts hydration miss", "document_id", h.DocumentID, "error", err)
			continue
		}
		out = append(out, candidate.Snippet{
			ID:             d.ID,
			SourceType:     candidate.SourceProjectDocumentFTS,
			ContentSnippet: selectContent(candidate.AIStatus(d.AIStatus), d.Summary, h.Highlight, d.Content),
			InitialScore:   ftsScore(h.Rank),
			FilePath:       d.Path,
			AIStatus:       candidate.AIStatus(d.AIStatus),
			TimestampVal:   timePtr(d.UpdatedAt),
			Metadata:       &candidate.Metadata{Keywords: d.Keywords},
		})
	}
	return out
}

func (g *Generator) searchKeyword(ctx context.Context, tok Result) []candidate.Snippet {
	hits, err := g.store.SearchKeywordIndex(ctx, tok.SearchTerms, limitKeyword)
	if err != nil {
		slog.Warn("keyword search failed", "error", err)
		return nil
	}
	out := make([]candidate.Snippet, 0, len(hits))
	for _, h := range hits {
		score := keywordScore(h.TotalWeight, h.MatchCount)
		if e, err := g.store.GetCodeEntity(ctx, h.ID); err == nil {
			out = append(out, candidate.Snippet{
				ID:             e.ID,
				SourceType:     candidate.SourceCodeEntityKeyword,
				ContentSnippet: selectContent(candidate.AIStatus(e.AIStatus), e.Summary, "", e.Content),
				InitialScore:   score,
				FilePath:       e.FilePath,
				EntityName:     e.Name,
				EntityType:     string(e.EntityType),
				Language:       e.Language,
				AIStatus:       candidate.AIStatus(e.AIStatus),
				TimestampVal:   timePtr(e.UpdatedAt),
				Metadata:       &candidate.Metadata{Keywords: e.Keywords, StartLine: e.StartLine, EndLine: e.EndLine},
			})
			continue
		}
		if d, err := g.store.GetProjectDocument(ctx, h.ID); err == nil {
			out = append(out, candidate.Snippet{
				ID:             d.ID,
				SourceType:     candidate.SourceProjectDocumentKW,
				ContentSnippet: selectContent(candidate.AIStatus(d.AIStatus), d.Summary, "", d.Content),
				InitialScore:   score,
				FilePath:       d.Path,
				AIStatus:       candidate.AIStatus(d.AIStatus),
				TimestampVal:   timePtr(d.UpdatedAt),
				Metadata:       &candidate.Metadata{Keywords: d.Keywords},
			})
			continue
		}
		slog.Warn("keyword hydration miss", "id", h.ID)
	}
	return out
}

func (g *Generator) searchConversationMessages(ctx context.Context, conversationID string, tok Result, now time.Time) []candidate.Snippet {
	hits, err := g.store.SearchConversationMessages(ctx, conversationID, tok.FTSExpression, limitConversationMsg)
	if err != nil {
		slog.Warn("conversation message search failed", "error", err)
		return nil
	}
	out := make([]candidate.Snippet, 0, len(hits))
	for _, h := range hits {
		m, err := g.store.GetConversationMessage(ctx, h.MessageID)
		if err != nil {
			slog.Warn("conversation message hydration miss", "message_id", h.MessageID, "error", err)
			continue
		}
		out = append(out, candidate.Snippet{
			ID:             m.ID,
			SourceType:     candidate.SourceConversationMessage,
			ContentSnippet: selectContent("", "", h.Highlight, m.Content),
			InitialScore:   conversationMessageScore(m.ConversationID == conversationID, m.CreatedAt, now, tok.SearchTerms, m.Content),
			TimestampVal:   timePtr(m.CreatedAt),
			Metadata:       &candidate.Metadata{Role: m.Role, ConversationID: m.ConversationID},
		})
	}
	return out
}

func (g *Generator) searchConversationTopics(ctx context.Context, conversationID string, tok Result) []candidate.Snippet {
	topics, err := g.store.SearchConversationTopics(ctx, conversationID, tok.SearchTerms, limitConversationTopic)
	if err != nil {
		slog.Warn("conversation topic search failed", "error", err)
		return nil
	}
	return buildTopicSnippets(topics, tok)
}

func buildTopicSnippets(topics []conversation.Topic, tok Result) []candidate.Snippet {
	out := make([]candidate.Snippet, 0, len(topics))
	for _, t := range topics {
		out = append(out, candidate.Snippet{
			ID:             t.ID,
			SourceType:     candidate.SourceConversationTopic,
			ContentSnippet: topicContent(t.Summary),
			InitialScore:   conversationTopicScore(tok.SearchTerms, t.Summary, t.Keywords),
			TimestampVal:   timePtr(t.CreatedAt),
			Metadata:       &candidate.Metadata{ConversationID: t.ConversationID, Keywords: t.Keywords},
		})
	}
	return out
}

func (g *Generator) searchGitCommits(ctx context.Context, tok Result, now time.Time) []candidate.Snippet {
	hits, err := g.store.SearchGitCommits(ctx, tok.SearchTerms, limitGitCommits)
	if err != nil {
		slog.Warn("git commit search failed", "error", err)
		return nil
	}
	out := make([]candidate.Snippet, 0, len(hits))
	for _, h := range hits {
		c, err := g.store.GetGitCommit(ctx, h.Hash)
		if err != nil {
			slog.Warn("git commit hydration miss", "hash", h.Hash, "error", err)
			continue
		}
		out = append(out, candidate.Snippet{
			ID:             c.Hash,
			SourceType:     candidate.SourceGitCommit,
			ContentSnippet: commitContent(c.Message),
			InitialScore:   gitCommitScore(tok.SearchTerms, c.Message, c.Author, c.CommitDate, now),
			TimestampVal:   timePtr(c.CommitDate),
			Metadata:       &candidate.Metadata{CommitHash: c.Hash, Author: c.Author, CommitDate: timePtr(c.CommitDate), Message: c.Message},
		})
	}
	return out
}

func (g *Generator) searchGitFileChanges(ctx context.Context, tok Result, now time.Time) []candidate.Snippet {
	terms := pathLikeTerms(tok.SearchTerms)
	if len(terms) == 0 {
		terms = tok.SearchTerms
	}
	hits, err := g.store.SearchGitCommitFileChanges(ctx, terms, limitGitFileChanges)
	if err != nil {
		slog.Warn("git file change search failed", "error", err)
		return nil
	}
	out := make([]candidate.Snippet, 0, len(hits))
	for _, h := range hits {
		c, err := g.store.GetGitCommit(ctx, h.CommitHash)
		if err != nil {
			slog.Warn("git file change hydration miss", "commit_hash", h.CommitHash, "error", err)
			continue
		}
		id := fmt.Sprintf("%s:%s", h.CommitHash, h.Path)
		out = append(out, candidate.Snippet{
			ID:             id,
			SourceType:     candidate.SourceGitCommitFileChange,
			ContentSnippet: fileChangeContent(h.Path, h.Status, c.Message),
			InitialScore:   gitFileChangeScore(tok.SearchTerms, h.Path, c.Message, h.Status, c.CommitDate, now),
			FilePath:       h.Path,
			TimestampVal:   timePtr(c.CommitDate),
			Metadata:       &candidate.Metadata{CommitHash: h.CommitHash, Status: string(h.Status), Message: c.Message},
		})
	}
	return out
}

// selectContent applies the content-selection priority: completed summary,
// then FTS highlight, then a 300-character truncation of raw content, then a
// placeholder.
func selectContent(aiStatus candidate.AIStatus, summary, highlight, rawContent string) string {
	if aiStatus == candidate.AIStatusCompleted && summary != "" {
		return summary
	}
	if highlight != "" {
		return highlight
	}
	if rawContent != "" {
		if len(rawContent) > 300 {
			return rawContent[:300] + "..."
		}
		return rawContent
	}
	return "No content available…"
}

func topicContent(summary string) string {
	if summary != "" {
		return summary
	}
	return "No content available…"
}

func commitContent(message string) string {
	if message != "" {
		return message
	}
	return "No content available…"
}

func fileChangeContent(path string, status gitlog.FileStatus, commitMessage string) string {
	base := fmt.Sprintf("%s: %s", status, path)
	if commitMessage != "" {
		base += " - " + commitMessage
	}
	return base
}

func pathLikeTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		if strings.Contains(t, "/") {
			out = append(out, t)
			continue
		}
		for _, ext := range codeOrDocExtensions {
			if strings.HasSuffix(t, ext) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time {
	return &t
}
