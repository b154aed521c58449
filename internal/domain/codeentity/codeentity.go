// Package codeentity holds the indexed code-symbol record the storage
// adapter serves typed queries over. Entities are deposited by an external
// source-parsing collaborator; this package only models the shape, not the
// ingestion.
package codeentity

import "time"

// EntityType enumerates the structural kinds a parsed symbol can take.
type EntityType string

const (
	TypeFunctionDeclaration EntityType = "function_declaration"
	TypeMethodDefinition    EntityType = "method_definition"
	TypeClassDeclaration    EntityType = "class_declaration"
	TypeInterfaceDeclaration EntityType = "interface_declaration"
	TypeTypeDefinition      EntityType = "type_definition"
)

// AIStatus mirrors candidate.AIStatus; duplicated here to keep this package
// free of a dependency on the candidate package (storage rows convert at
// the adapter boundary).
type AIStatus string

const (
	StatusPending     AIStatus = "pending"
	StatusInProgress  AIStatus = "in_progress"
	StatusCompleted   AIStatus = "completed"
	StatusFailedAI    AIStatus = "failed_ai"
	StatusNotNeeded   AIStatus = "not_needed"
	StatusRateLimited AIStatus = "rate_limited"
)

// Entity is a single indexed code symbol: a function, method, class,
// interface, or type definition within one file of the watched project.
type Entity struct {
	ID         string
	ProjectID  string
	FilePath   string
	Name       string
	EntityType EntityType
	Language   string
	Content    string
	StartLine  int
	EndLine    int
	Summary    string
	Keywords   []string
	AIStatus   AIStatus
	AIError    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FTSHit is one full-text search result row: the matched entity id, the
// engine's rank (lower is better), and an optional highlighted excerpt.
type FTSHit struct {
	EntityID  string
	Rank      float64
	Highlight string
}
