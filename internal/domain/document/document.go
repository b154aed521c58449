// Package document holds the project documentation record the storage
// adapter serves typed queries over (README files, design docs, anything
// non-code the source collaborator chose to index).
package document

import "time"

// AIStatus mirrors candidate.AIStatus for project documents.
type AIStatus string

const (
	StatusPending     AIStatus = "pending"
	StatusInProgress  AIStatus = "in_progress"
	StatusCompleted   AIStatus = "completed"
	StatusFailedAI    AIStatus = "failed_ai"
	StatusNotNeeded   AIStatus = "not_needed"
	StatusRateLimited AIStatus = "rate_limited"
)

// Document is a single indexed project document.
type Document struct {
	ID        string
	ProjectID string
	Path      string
	Title     string
	Content   string
	Summary   string
	Keywords  []string
	AIStatus  AIStatus
	AIError   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FTSHit is one full-text search result row over project documents.
type FTSHit struct {
	DocumentID string
	Rank       float64
	Highlight  string
}
