package postgres

import (
	"context"
	"fmt"

	"github.com/contextengine/retrieval/internal/domain/job"
)

// EnqueueJob persists a new job. Callers may rely on the row existing once
// this returns.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO background_ai_jobs
		   (job_id, target_entity_id, target_entity_type, task_type, status, attempts, max_attempts, payload, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		j.JobID, j.TargetEntityID, j.TargetEntityType, j.TaskType, job.StatusPending, 0, j.MaxAttempts, nullIfEmpty(j.Payload), nullIfEmpty(j.LastError))
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", j.JobID, err)
	}
	return nil
}

// FetchPendingJobs returns up to limit pending jobs whose task type is not
// in excludeTaskTypes (the poller's currently-paused set). retry_ai jobs are
// re-picked alongside pending ones.
func (s *Store) FetchPendingJobs(ctx context.Context, limit int, excludeTaskTypes []job.TaskType) ([]job.Job, error) {
	excluded := make([]string, len(excludeTaskTypes))
	for i, t := range excludeTaskTypes {
		excluded[i] = string(t)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT job_id, target_entity_id, target_entity_type, task_type, status,
		        attempts, max_attempts, COALESCE(payload, ''), COALESCE(last_error, ''), created_at, updated_at
		 FROM background_ai_jobs
		 WHERE status IN ('pending', 'retry_ai')
		   AND NOT (task_type = ANY($1))
		 ORDER BY created_at ASC
		 LIMIT $2`, pgTextArray(excluded), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []job.Job
	for rows.Next() {
		var j job.Job
		if err := rows.Scan(&j.JobID, &j.TargetEntityID, &j.TargetEntityType, &j.TaskType, &j.Status,
			&j.Attempts, &j.MaxAttempts, &j.Payload, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkJobProcessing transitions a job to processing. Attempts are not
// touched here; the poller consumes one via IncrementJobAttempts only for
// outcomes that cost an attempt.
func (s *Store) MarkJobProcessing(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE background_ai_jobs
		 SET status = $2, updated_at = now()
		 WHERE job_id = $1`, jobID, job.StatusProcessing)
	return execExpectOne(tag, err, "mark job %s processing", jobID)
}

// IncrementJobAttempts consumes one attempt. Called after outcome
// classification, so rate-limited and payload-parse dispositions never
// reach it.
func (s *Store) IncrementJobAttempts(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE background_ai_jobs
		 SET attempts = attempts + 1, updated_at = now()
		 WHERE job_id = $1`, jobID)
	return execExpectOne(tag, err, "increment job %s attempts", jobID)
}

// UpdateJobStatus applies a terminal or semi-terminal transition. It never
// touches attempts; callers that need an attempt increment use
// IncrementJobAttempts.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status job.Status, lastError string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE background_ai_jobs
		 SET status = $2, last_error = $3, updated_at = now()
		 WHERE job_id = $1`, jobID, status, nullIfEmpty(lastError))
	return execExpectOne(tag, err, "update job %s status", jobID)
}

// MirrorEntityAIStatus propagates a job's terminal status onto the target
// record's ai_status/ai_error columns so ranking's AI-status weight reflects
// the latest enrichment outcome.
func (s *Store) MirrorEntityAIStatus(ctx context.Context, targetID string, targetType job.TargetEntityType, status, errMsg string) error {
	var table string
	switch targetType {
	case job.TargetCodeEntity:
		table = "code_entities"
	case job.TargetProjectDocument:
		table = "project_documents"
	default:
		// Conversations have no ai_status column to mirror onto; topics are
		// created directly by the generate_topics handler instead.
		return nil
	}

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET ai_status = $2, ai_error = $3, updated_at = now() WHERE id = $1`, table),
		targetID, status, nullIfEmpty(errMsg))
	return execExpectOne(tag, err, "mirror ai status onto %s %s", table, targetID)
}
