// Package job defines the background AI enrichment job record and the
// closed set of error kinds the job manager dispatches on.
package job

import (
	"errors"
	"fmt"
	"time"
)

// TargetEntityType is the kind of record a job's output gets written back to.
type TargetEntityType string

const (
	TargetCodeEntity      TargetEntityType = "code_entity"
	TargetProjectDocument TargetEntityType = "project_document"
	TargetConversation    TargetEntityType = "conversation"
)

// TaskType selects which handler processes a job.
type TaskType string

const (
	TaskEnrichEntitySummaryKeywords TaskType = "enrich_entity_summary_keywords"
	TaskGenerateTopics              TaskType = "generate_topics"
)

// Status is a job's position in its state machine.
type Status string

const (
	StatusPending              Status = "pending"
	StatusProcessing           Status = "processing"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusFailedAI             Status = "failed_ai"
	StatusFailedPayloadParsing Status = "failed_payload_parsing"
	StatusFailedJobLogic       Status = "failed_job_logic"
	StatusRateLimited          Status = "rate_limited"
	StatusRetryAI              Status = "retry_ai"
)

// Terminal reports whether status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusFailedAI, StatusFailedPayloadParsing, StatusFailedJobLogic:
		return true
	default:
		return false
	}
}

// Job is one unit of background AI enrichment work.
type Job struct {
	JobID            string
	TargetEntityID   string
	TargetEntityType TargetEntityType
	TaskType         TaskType
	Status           Status
	Attempts         int
	MaxAttempts      int
	Payload          string
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Sentinel error kinds a handler returns to tell the poller how to
// transition a job. These are the only error shapes the poller switches on;
// everything else is treated as an unexpected job-logic failure.
var (
	// ErrPayloadParse marks a terminal failure decoding Job.Payload.
	ErrPayloadParse = errors.New("job: payload parse error")
)

// RateLimitError signals the enrichment provider rejected the call for rate
// limiting. RetryAfter, when zero, falls back to the poller's default pause.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job: rate limited: %v", e.Err)
	}
	return "job: rate limited"
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ProviderError signals the enrichment provider failed in a way that may
// succeed on retry (timeouts, transient 5xx, empty completions). Malformed
// model output is reported as ErrPayloadParse instead.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("job: provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
