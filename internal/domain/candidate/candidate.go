// Package candidate defines the uniform snippet model produced by candidate
// generation and relationship expansion, and consumed by ranking and
// compression.
package candidate

import "time"

// SourceType discriminates which search stage produced a snippet.
type SourceType string

const (
	SourceCodeEntityFTS       SourceType = "code_entity_fts"
	SourceCodeEntityKeyword   SourceType = "code_entity_keyword"
	SourceProjectDocumentFTS  SourceType = "project_document_fts"
	SourceProjectDocumentKW   SourceType = "project_document_keyword"
	SourceConversationMessage SourceType = "conversation_message"
	SourceConversationTopic   SourceType = "conversation_topic"
	SourceGitCommit           SourceType = "git_commit"
	SourceGitCommitFileChange SourceType = "git_commit_file_change"
	SourceCodeEntityRelated   SourceType = "code_entity_related"
)

// AIStatus mirrors the enrichment status of the upstream record a snippet
// was hydrated from.
type AIStatus string

const (
	AIStatusPending     AIStatus = "pending"
	AIStatusInProgress  AIStatus = "in_progress"
	AIStatusCompleted   AIStatus = "completed"
	AIStatusFailedAI    AIStatus = "failed_ai"
	AIStatusNotNeeded   AIStatus = "not_needed"
	AIStatusRateLimited AIStatus = "rate_limited"
)

// RelationshipType enumerates the code-relationship edges the expander and
// ranker understand.
type RelationshipType string

const (
	RelCallsFunction      RelationshipType = "CALLS_FUNCTION"
	RelCallsMethod        RelationshipType = "CALLS_METHOD"
	RelImplementsIface    RelationshipType = "IMPLEMENTS_INTERFACE"
	RelExtendsClass       RelationshipType = "EXTENDS_CLASS"
	RelDefinesChildEntity RelationshipType = "DEFINES_CHILD_ENTITY"
	RelTypeReference      RelationshipType = "TYPE_REFERENCE"
	RelImportsModule      RelationshipType = "IMPORTS_MODULE"
	RelAccessesProperty   RelationshipType = "ACCESSES_PROPERTY"
	RelUsesVariable       RelationshipType = "USES_VARIABLE"
	RelDefinesType        RelationshipType = "DEFINES_TYPE"
	RelUsesType           RelationshipType = "USES_TYPE"
	RelImportsFrom        RelationshipType = "IMPORTS_FROM"
	RelRequiresModule     RelationshipType = "REQUIRES_MODULE"
	RelReferences         RelationshipType = "REFERENCES"
	RelMentions           RelationshipType = "MENTIONS"
)

// Direction describes which endpoint of a relationship the seed occupied.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// DefaultExpansionRelationshipTypes is the relationship whitelist the
// expander uses when the caller supplies none.
var DefaultExpansionRelationshipTypes = []RelationshipType{
	RelCallsFunction, RelCallsMethod, RelImplementsIface, RelExtendsClass,
	RelDefinesChildEntity, RelTypeReference, RelImportsModule,
	RelAccessesProperty, RelUsesVariable, RelDefinesType, RelUsesType,
}

// RelationshipContext is attached to code_entity_related snippets describing
// how they connect back to their seed entity.
type RelationshipContext struct {
	RelatedToSeedEntityID string           `json:"relatedToSeedEntityId"`
	RelationshipType      RelationshipType `json:"relationshipType"`
	Direction             Direction        `json:"direction"`
	CustomMetadata        map[string]any   `json:"customMetadata,omitempty"`
}

// Metadata is the free-form bag carried by a snippet; fields are populated
// according to sourceType.
type Metadata struct {
	Role           string     `json:"role,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	PurposeTag     string     `json:"purposeTag,omitempty"`
	Keywords       []string   `json:"keywords,omitempty"`
	CommitHash     string     `json:"commitHash,omitempty"`
	Author         string     `json:"author,omitempty"`
	CommitDate     *time.Time `json:"commitDate,omitempty"`
	Status         string     `json:"status,omitempty"`
	Message        string     `json:"message,omitempty"`
	StartLine      int        `json:"startLine,omitempty"`
	EndLine        int        `json:"endLine,omitempty"`
	Truncated      bool       `json:"truncated,omitempty"`
	OriginalLen    int        `json:"originalLen,omitempty"`
	TruncatedLen   int        `json:"truncatedLen,omitempty"`
}

// Timestamp reports the best timestamp available for recency scoring,
// preferring snippet.Timestamp, then Metadata.CommitDate.
func (s *Snippet) Timestamp() (time.Time, bool) {
	if s.TimestampVal != nil {
		return *s.TimestampVal, true
	}
	if s.Metadata != nil && s.Metadata.CommitDate != nil {
		return *s.Metadata.CommitDate, true
	}
	return time.Time{}, false
}

// Snippet is the uniform candidate record produced by generation and
// expansion, and consumed by ranking and compression.
type Snippet struct {
	ID                string     `json:"id"`
	SourceType        SourceType `json:"sourceType"`
	ContentSnippet    string     `json:"contentSnippet"`
	InitialScore      float64    `json:"initialScore"`
	ConsolidatedScore *float64   `json:"consolidatedScore,omitempty"`

	FilePath     string     `json:"filePath,omitempty"`
	EntityName   string     `json:"entityName,omitempty"`
	EntityType   string     `json:"entityType,omitempty"`
	Language     string     `json:"language,omitempty"`
	AIStatus     AIStatus   `json:"aiStatus,omitempty"`
	TimestampVal *time.Time `json:"timestamp,omitempty"`

	Metadata            *Metadata            `json:"metadata,omitempty"`
	RelationshipContext *RelationshipContext `json:"relationshipContext,omitempty"`
}

// HasAIStatus reports whether AIStatus carries a meaningful value (the zero
// value means "not applicable for this source type").
func (s *Snippet) HasAIStatus() bool {
	return s.AIStatus != ""
}

// MergeKey returns the key used to index this snippet for relationship
// merging: "entity_"+id for code entities (fts/keyword/related sources),
// sourceType+"_"+id otherwise.
func (s *Snippet) MergeKey() string {
	switch s.SourceType {
	case SourceCodeEntityFTS, SourceCodeEntityKeyword, SourceCodeEntityRelated:
		return "entity_" + s.ID
	default:
		return string(s.SourceType) + "_" + s.ID
	}
}
