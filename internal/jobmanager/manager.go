// Package jobmanager implements the background AI enrichment job poller: a
// single cooperative loop over the background_ai_jobs queue with bounded
// concurrency, per-task-type pauses, and bounded retries.
package jobmanager

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextengine/retrieval/internal/domain/conversation"
	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/port/ai"
	"github.com/contextengine/retrieval/internal/port/database"
)

// defaultRateLimitPause is the fallback pause duration applied to a task
// type when a RateLimitError carries no RetryAfter.
const defaultRateLimitPause = 60 * time.Second

// StatusPublisher is the narrow slice of nats.Queue the manager depends on;
// satisfied by *nats.Queue, nil-able so the manager runs without NATS wired.
type StatusPublisher interface {
	PublishJobStatus(ctx context.Context, j *job.Job) error
}

// Metrics is the narrow slice of otel.Metrics the manager reports into.
type Metrics interface {
	RecordJobDispatched(ctx context.Context)
	RecordJobCompleted(ctx context.Context)
	RecordJobFailed(ctx context.Context)
	RecordJobRateLimited(ctx context.Context)
}

// Spans abstracts span creation so the manager can run without otel wired
// in tests.
type Spans interface {
	StartJobSpan(ctx context.Context, jobID, taskType string) (context.Context, func())
}

// Config holds the poller's tuning knobs, copied out of config.Job so the
// manager doesn't depend on the config package directly.
type Config struct {
	Concurrency     int
	Delay           time.Duration
	MaxAttempts     int
	PollingInterval time.Duration
}

// Manager polls the job queue and dispatches enrichment work.
type Manager struct {
	store    database.Store
	provider ai.Provider
	queue    StatusPublisher
	metrics  Metrics
	spans    Spans
	cfg      Config

	mu      sync.Mutex
	active  int
	cycling bool
	paused  map[job.TaskType]time.Time
}

// New creates a Manager. queue, metrics, and spans may be nil.
func New(store database.Store, provider ai.Provider, queue StatusPublisher, metrics Metrics, spans Spans, cfg Config) *Manager {
	return &Manager{
		store:    store,
		provider: provider,
		queue:    queue,
		metrics:  metrics,
		spans:    spans,
		cfg:      cfg,
		paused:   make(map[job.TaskType]time.Time),
	}
}

// Start launches the polling goroutine, ticking every cfg.PollingInterval
// until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.PollingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runCycle(ctx)
			}
		}
	}()
}

// runCycle is one polling pass: it fetches and dispatches up to `free` jobs,
// then returns without waiting for dispatched handlers to finish. A
// reentrancy guard skips the tick entirely if the previous cycle is still
// dispatching.
func (m *Manager) runCycle(ctx context.Context) {
	m.mu.Lock()
	if m.cycling {
		m.mu.Unlock()
		return
	}
	m.cycling = true
	free := m.cfg.Concurrency - m.active
	m.dropExpiredPauses()
	excluded := m.pausedTaskTypesLocked()
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.cycling = false
		m.mu.Unlock()
	}()

	if free <= 0 {
		return
	}

	jobs, err := m.store.FetchPendingJobs(ctx, free, excluded)
	if err != nil {
		slog.Warn("job manager: fetch pending jobs failed", "error", err)
		return
	}

	for i := range jobs {
		if i > 0 && m.cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.cfg.Delay):
			}
		}

		j := jobs[i]
		m.mu.Lock()
		m.active++
		m.mu.Unlock()

		go func(j job.Job) {
			defer func() {
				m.mu.Lock()
				m.active--
				m.mu.Unlock()
			}()
			m.dispatch(ctx, j)
		}(j)
	}
}

// dropExpiredPauses removes task types whose pause has elapsed. Caller must
// hold m.mu.
func (m *Manager) dropExpiredPauses() {
	now := time.Now()
	for t, until := range m.paused {
		if !now.Before(until) {
			delete(m.paused, t)
		}
	}
}

// pausedTaskTypesLocked returns the currently paused task types. Caller
// must hold m.mu.
func (m *Manager) pausedTaskTypesLocked() []job.TaskType {
	out := make([]job.TaskType, 0, len(m.paused))
	for t := range m.paused {
		out = append(out, t)
	}
	return out
}

func (m *Manager) pauseTaskType(t job.TaskType, d time.Duration) {
	if d <= 0 {
		d = defaultRateLimitPause
	}
	m.mu.Lock()
	m.paused[t] = time.Now().Add(d)
	m.mu.Unlock()
}

// dispatch transitions one job to processing, runs its handler, and applies
// the status disposition rules to the result.
func (m *Manager) dispatch(ctx context.Context, j job.Job) {
	var endSpan func()
	if m.spans != nil {
		ctx, endSpan = m.spans.StartJobSpan(ctx, j.JobID, string(j.TaskType))
		defer endSpan()
	}

	if err := m.store.MarkJobProcessing(ctx, j.JobID); err != nil {
		slog.Warn("job manager: mark processing failed", "job", j.JobID, "error", err)
		return
	}
	if m.metrics != nil {
		m.metrics.RecordJobDispatched(ctx)
	}

	attemptsAfter := j.Attempts + 1
	maxAttempts := j.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = m.cfg.MaxAttempts
	}

	handlerErr := m.runHandler(ctx, j)

	status, lastError, mirrorStatus := m.classify(j, attemptsAfter, maxAttempts, handlerErr)

	// Rate-limited and payload-parse outcomes never consume an attempt;
	// everything else does.
	if status != job.StatusRateLimited && status != job.StatusFailedPayloadParsing {
		if err := m.store.IncrementJobAttempts(ctx, j.JobID); err != nil {
			slog.Warn("job manager: increment job attempts failed", "job", j.JobID, "error", err)
		}
		j.Attempts = attemptsAfter
	}

	if err := m.store.UpdateJobStatus(ctx, j.JobID, status, lastError); err != nil {
		slog.Warn("job manager: update job status failed", "job", j.JobID, "error", err)
	}
	if mirrorStatus != "" {
		if err := m.store.MirrorEntityAIStatus(ctx, j.TargetEntityID, j.TargetEntityType, mirrorStatus, lastError); err != nil {
			slog.Warn("job manager: mirror entity ai status failed", "job", j.JobID, "error", err)
		}
	}

	j.Status = status
	j.LastError = lastError
	j.UpdatedAt = time.Now()
	if m.queue != nil {
		if err := m.queue.PublishJobStatus(ctx, &j); err != nil {
			slog.Warn("job manager: publish job status failed", "job", j.JobID, "error", err)
		}
	}

	m.recordMetric(ctx, status)
}

// classify maps a handler outcome onto the job's next status, the error
// text to persist, and the AI status (if any) to mirror onto the target
// entity.
func (m *Manager) classify(j job.Job, attemptsAfter, maxAttempts int, err error) (status job.Status, lastError, mirrorStatus string) {
	if err == nil {
		return job.StatusCompleted, "", "completed"
	}

	var rle *job.RateLimitError
	if errors.As(err, &rle) {
		m.pauseTaskType(j.TaskType, rle.RetryAfter)
		return job.StatusRateLimited, err.Error(), "rate_limited"
	}

	if errors.Is(err, job.ErrPayloadParse) {
		return job.StatusFailedPayloadParsing, err.Error(), ""
	}

	var pe *job.ProviderError
	if errors.As(err, &pe) {
		if attemptsAfter < maxAttempts {
			return job.StatusRetryAI, err.Error(), ""
		}
		return job.StatusFailedAI, err.Error(), "failed_ai"
	}

	return job.StatusFailedJobLogic, err.Error(), ""
}

func (m *Manager) recordMetric(ctx context.Context, status job.Status) {
	if m.metrics == nil {
		return
	}
	switch status {
	case job.StatusCompleted:
		m.metrics.RecordJobCompleted(ctx)
	case job.StatusRateLimited:
		m.metrics.RecordJobRateLimited(ctx)
	case job.StatusFailedAI, job.StatusFailedPayloadParsing, job.StatusFailedJobLogic:
		m.metrics.RecordJobFailed(ctx)
	}
}

// runHandler dispatches to the handler keyed by (taskType, targetEntityType).
// Unknown pairs return a plain error, which classify() resolves to
// failed_job_logic.
func (m *Manager) runHandler(ctx context.Context, j job.Job) error {
	switch {
	case j.TaskType == job.TaskEnrichEntitySummaryKeywords && j.TargetEntityType == job.TargetCodeEntity:
		return m.enrichCodeEntity(ctx, j)
	case j.TaskType == job.TaskEnrichEntitySummaryKeywords && j.TargetEntityType == job.TargetProjectDocument:
		return m.enrichProjectDocument(ctx, j)
	case j.TaskType == job.TaskGenerateTopics && j.TargetEntityType == job.TargetConversation:
		return m.generateTopics(ctx, j)
	default:
		return errors.New("job manager: no handler for task/target pair")
	}
}

// conversationMessagesLimit bounds how much transcript is sent to the
// enrichment provider for topic generation.
const conversationMessagesLimit = 200

func (m *Manager) enrichCodeEntity(ctx context.Context, j job.Job) error {
	entity, err := m.store.GetCodeEntity(ctx, j.TargetEntityID)
	if err != nil {
		return err
	}

	result, err := m.provider.EnrichEntitySummaryKeywords(ctx, ai.EntityEnrichmentRequest{
		EntityID: entity.ID,
		Content:  entity.Content,
		Language: entity.Language,
	})
	if err != nil {
		return err
	}

	return m.store.UpdateCodeEntitySummaryKeywords(ctx, entity.ID, result.Summary, result.Keywords)
}

func (m *Manager) enrichProjectDocument(ctx context.Context, j job.Job) error {
	doc, err := m.store.GetProjectDocument(ctx, j.TargetEntityID)
	if err != nil {
		return err
	}

	result, err := m.provider.EnrichEntitySummaryKeywords(ctx, ai.EntityEnrichmentRequest{
		EntityID: doc.ID,
		Content:  doc.Content,
		Language: "markdown",
	})
	if err != nil {
		return err
	}

	return m.store.UpdateProjectDocumentSummaryKeywords(ctx, doc.ID, result.Summary, result.Keywords)
}

func (m *Manager) generateTopics(ctx context.Context, j job.Job) error {
	messages, err := m.store.ListConversationMessages(ctx, j.TargetEntityID, conversationMessagesLimit)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	contents := make([]string, len(messages))
	for i, msg := range messages {
		contents[i] = msg.Content
	}

	topics, err := m.provider.GenerateTopics(ctx, ai.TopicGenerationRequest{
		ConversationID: j.TargetEntityID,
		Messages:       contents,
	})
	if err != nil {
		return err
	}

	for _, t := range topics {
		topic := conversation.Topic{
			ID:             uuid.New().String(),
			ConversationID: j.TargetEntityID,
			Summary:        t.Summary,
			Keywords:       t.Keywords,
		}
		if err := m.store.InsertConversationTopic(ctx, &topic); err != nil {
			return err
		}
	}
	return nil
}
