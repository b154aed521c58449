// Package database defines the storage port (interface) the retrieval
// pipeline and job manager depend on. The postgres adapter implements it;
// nothing above this package knows pgx exists.
package database

import (
	"context"

	"github.com/contextengine/retrieval/internal/domain/codeentity"
	"github.com/contextengine/retrieval/internal/domain/conversation"
	"github.com/contextengine/retrieval/internal/domain/document"
	"github.com/contextengine/retrieval/internal/domain/gitlog"
	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/domain/relationship"
)

// Store is the port interface for all storage operations the retrieval
// engine needs: typed queries over code entities, documents, the keyword
// index, full-text indexes, relationships, conversation history/topics,
// git commits/file changes, the job queue, and the git-monitor watermark.
type Store interface {
	// Code entities
	GetCodeEntity(ctx context.Context, id string) (*codeentity.Entity, error)
	SearchCodeEntitiesFTS(ctx context.Context, ftsExpression string, limit int) ([]codeentity.FTSHit, error)

	// Project documents
	GetProjectDocument(ctx context.Context, id string) (*document.Document, error)
	SearchDocumentsFTS(ctx context.Context, ftsExpression string, limit int) ([]document.FTSHit, error)

	// Keyword index: ids may reference either a code entity or a project
	// document; callers resolve by trying code-entity lookup first, then
	// document lookup, for any id left unresolved.
	SearchKeywordIndex(ctx context.Context, terms []string, limit int) ([]KeywordHit, error)

	// Code relationships (one-hop graph expansion)
	RelatedEntities(ctx context.Context, entityID string, types []relationship.Type) ([]relationship.Relationship, error)

	// Conversation history and topics
	GetConversationMessage(ctx context.Context, id string) (*conversation.Message, error)
	SearchConversationMessages(ctx context.Context, conversationID, ftsExpression string, limit int) ([]conversation.MessageHit, error)
	SearchConversationTopics(ctx context.Context, conversationID string, terms []string, limit int) ([]conversation.Topic, error)
	RecentConversationTopics(ctx context.Context, conversationID string, limit int) ([]conversation.Topic, error)
	ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
	InsertConversationTopic(ctx context.Context, t *conversation.Topic) error

	// Git commit and file-change history
	GetGitCommit(ctx context.Context, hash string) (*gitlog.Commit, error)
	SearchGitCommits(ctx context.Context, terms []string, limit int) ([]gitlog.CommitHit, error)
	SearchGitCommitFileChanges(ctx context.Context, pathTerms []string, limit int) ([]gitlog.FileChangeHit, error)
	InsertGitCommit(ctx context.Context, c *gitlog.Commit, files []gitlog.CommitFile) error
	GetLastProcessedCommitOID(ctx context.Context) (string, error)
	SetLastProcessedCommitOID(ctx context.Context, oid string) error

	// Background AI enrichment job queue. MarkJobProcessing is a pure
	// status transition; the poller consumes an attempt separately via
	// IncrementJobAttempts, and only for outcomes that cost one
	// (rate-limited and payload-parse failures do not).
	EnqueueJob(ctx context.Context, j *job.Job) error
	FetchPendingJobs(ctx context.Context, limit int, excludeTaskTypes []job.TaskType) ([]job.Job, error)
	MarkJobProcessing(ctx context.Context, jobID string) error
	IncrementJobAttempts(ctx context.Context, jobID string) error
	UpdateJobStatus(ctx context.Context, jobID string, status job.Status, lastError string) error
	MirrorEntityAIStatus(ctx context.Context, targetID string, targetType job.TargetEntityType, status, errMsg string) error

	// Enrichment write-back: handlers persist AI output through these once a
	// provider call succeeds.
	UpdateCodeEntitySummaryKeywords(ctx context.Context, id, summary string, keywords []string) error
	UpdateProjectDocumentSummaryKeywords(ctx context.Context, id, summary string, keywords []string) error

	// Summaries backing initialize_conversation_context
	ProjectStructureSummary(ctx context.Context) (string, error)
	ArchitectureContextSummary(ctx context.Context) (string, error)
}

// KeywordHit is one keyword-index result row; ID is ambiguous between a
// code entity and a project document until the caller resolves it.
type KeywordHit struct {
	ID          string
	TotalWeight float64
	MatchCount  int
}
