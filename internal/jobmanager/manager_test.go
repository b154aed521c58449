package jobmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/contextengine/retrieval/internal/domain/codeentity"
	"github.com/contextengine/retrieval/internal/domain/conversation"
	"github.com/contextengine/retrieval/internal/domain/document"
	"github.com/contextengine/retrieval/internal/domain/gitlog"
	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/domain/relationship"
	"github.com/contextengine/retrieval/internal/port/ai"
	"github.com/contextengine/retrieval/internal/port/database"
)

// Ensure fakeStore implements database.Store at compile time.
var _ database.Store = (*fakeStore)(nil)

type fakeStore struct {
	mu sync.Mutex

	entities  map[string]*codeentity.Entity
	documents map[string]*document.Document
	messages  map[string][]conversation.Message
	topics    []conversation.Topic

	jobs            []job.Job
	processingCalls []string
	statusUpdates   []struct {
		jobID     string
		status    job.Status
		lastError string
	}
	mirrorCalls []struct {
		targetID string
		status   string
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:  make(map[string]*codeentity.Entity),
		documents: make(map[string]*document.Document),
		messages:  make(map[string][]conversation.Message),
	}
}

func (f *fakeStore) GetCodeEntity(_ context.Context, id string) (*codeentity.Entity, error) {
	if e, ok := f.entities[id]; ok {
		return e, nil
	}
	return nil, errors.New("not found")
}
func (f *fakeStore) SearchCodeEntitiesFTS(_ context.Context, _ string, _ int) ([]codeentity.FTSHit, error) {
	return nil, nil
}
func (f *fakeStore) GetProjectDocument(_ context.Context, id string) (*document.Document, error) {
	if d, ok := f.documents[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}
func (f *fakeStore) SearchDocumentsFTS(_ context.Context, _ string, _ int) ([]document.FTSHit, error) {
	return nil, nil
}
func (f *fakeStore) SearchKeywordIndex(_ context.Context, _ []string, _ int) ([]database.KeywordHit, error) {
	return nil, nil
}
func (f *fakeStore) RelatedEntities(_ context.Context, _ string, _ []relationship.Type) ([]relationship.Relationship, error) {
	return nil, nil
}
func (f *fakeStore) GetConversationMessage(_ context.Context, _ string) (*conversation.Message, error) {
	return nil, errors.New("not found")
}
func (f *fakeStore) SearchConversationMessages(_ context.Context, _, _ string, _ int) ([]conversation.MessageHit, error) {
	return nil, nil
}
func (f *fakeStore) SearchConversationTopics(_ context.Context, _ string, _ []string, _ int) ([]conversation.Topic, error) {
	return nil, nil
}
func (f *fakeStore) RecentConversationTopics(_ context.Context, _ string, _ int) ([]conversation.Topic, error) {
	return nil, nil
}
func (f *fakeStore) ListConversationMessages(_ context.Context, conversationID string, _ int) ([]conversation.Message, error) {
	return f.messages[conversationID], nil
}
func (f *fakeStore) InsertConversationTopic(_ context.Context, t *conversation.Topic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, *t)
	return nil
}
func (f *fakeStore) GetGitCommit(_ context.Context, _ string) (*gitlog.Commit, error) {
	return nil, errors.New("not found")
}
func (f *fakeStore) SearchGitCommits(_ context.Context, _ []string, _ int) ([]gitlog.CommitHit, error) {
	return nil, nil
}
func (f *fakeStore) SearchGitCommitFileChanges(_ context.Context, _ []string, _ int) ([]gitlog.FileChangeHit, error) {
	return nil, nil
}
func (f *fakeStore) InsertGitCommit(_ context.Context, _ *gitlog.Commit, _ []gitlog.CommitFile) error {
	return nil
}
func (f *fakeStore) GetLastProcessedCommitOID(_ context.Context) (string, error) { return "", nil }
func (f *fakeStore) SetLastProcessedCommitOID(_ context.Context, _ string) error { return nil }

func (f *fakeStore) EnqueueJob(_ context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, *j)
	return nil
}
func (f *fakeStore) FetchPendingJobs(_ context.Context, limit int, excludeTaskTypes []job.TaskType) ([]job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[job.TaskType]bool, len(excludeTaskTypes))
	for _, t := range excludeTaskTypes {
		excluded[t] = true
	}
	var out []job.Job
	for _, j := range f.jobs {
		if len(out) >= limit {
			break
		}
		if j.Status != job.StatusPending && j.Status != job.StatusRetryAI {
			continue
		}
		if excluded[j.TaskType] {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}
func (f *fakeStore) MarkJobProcessing(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processingCalls = append(f.processingCalls, jobID)
	for i := range f.jobs {
		if f.jobs[i].JobID == jobID {
			f.jobs[i].Status = job.StatusProcessing
		}
	}
	return nil
}
func (f *fakeStore) IncrementJobAttempts(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].JobID == jobID {
			f.jobs[i].Attempts++
		}
	}
	return nil
}

// jobAttempts reads a job's attempt counter under the store lock.
func (f *fakeStore) jobAttempts(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.jobs {
		if f.jobs[i].JobID == jobID {
			return f.jobs[i].Attempts
		}
	}
	return -1
}
func (f *fakeStore) UpdateJobStatus(_ context.Context, jobID string, status job.Status, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates = append(f.statusUpdates, struct {
		jobID     string
		status    job.Status
		lastError string
	}{jobID, status, lastError})
	for i := range f.jobs {
		if f.jobs[i].JobID == jobID {
			f.jobs[i].Status = status
			f.jobs[i].LastError = lastError
		}
	}
	return nil
}
func (f *fakeStore) MirrorEntityAIStatus(_ context.Context, targetID string, _ job.TargetEntityType, status, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrorCalls = append(f.mirrorCalls, struct {
		targetID string
		status   string
	}{targetID, status})
	return nil
}
func (f *fakeStore) UpdateCodeEntitySummaryKeywords(_ context.Context, id, summary string, keywords []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entities[id]; ok {
		e.Summary = summary
		e.Keywords = keywords
		e.AIStatus = codeentity.StatusCompleted
	}
	return nil
}
func (f *fakeStore) UpdateProjectDocumentSummaryKeywords(_ context.Context, id, summary string, keywords []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.documents[id]; ok {
		d.Summary = summary
		d.Keywords = keywords
		d.AIStatus = document.StatusCompleted
	}
	return nil
}
func (f *fakeStore) ProjectStructureSummary(_ context.Context) (string, error)     { return "", nil }
func (f *fakeStore) ArchitectureContextSummary(_ context.Context) (string, error) { return "", nil }

type fakeProvider struct {
	enrichErr error
	enrichRes ai.EntityEnrichmentResult
	topicsErr error
	topicsRes []ai.GeneratedTopic
}

func (p *fakeProvider) EnrichEntitySummaryKeywords(_ context.Context, _ ai.EntityEnrichmentRequest) (ai.EntityEnrichmentResult, error) {
	return p.enrichRes, p.enrichErr
}
func (p *fakeProvider) GenerateTopics(_ context.Context, _ ai.TopicGenerationRequest) ([]ai.GeneratedTopic, error) {
	return p.topicsRes, p.topicsErr
}

type fakeQueue struct {
	mu        sync.Mutex
	published []job.Job
}

func (q *fakeQueue) PublishJobStatus(_ context.Context, j *job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, *j)
	return nil
}

func testConfig() Config {
	return Config{Concurrency: 2, Delay: 0, MaxAttempts: 3, PollingInterval: time.Hour}
}

// waitFor polls until cond returns true or the timeout elapses.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManager_EnrichCodeEntity_Success(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &codeentity.Entity{ID: "e1", Content: "func foo() {}", Language: "go"}
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "e1", TargetEntityType: job.TargetCodeEntity,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, MaxAttempts: 3,
	}}
	provider := &fakeProvider{enrichRes: ai.EntityEnrichmentResult{Summary: "does foo", Keywords: []string{"foo"}}}
	queue := &fakeQueue{}

	m := New(store, provider, queue, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statusUpdates) == 1
	})

	if store.entities["e1"].Summary != "does foo" {
		t.Errorf("entity summary = %q, want %q", store.entities["e1"].Summary, "does foo")
	}
	if store.statusUpdates[0].status != job.StatusCompleted {
		t.Errorf("job status = %s, want completed", store.statusUpdates[0].status)
	}
}

func TestManager_RateLimit_PausesTaskType(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &codeentity.Entity{ID: "e1"}
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "e1", TargetEntityType: job.TargetCodeEntity,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, MaxAttempts: 3,
	}}
	provider := &fakeProvider{enrichErr: &job.RateLimitError{RetryAfter: time.Minute, Err: errors.New("429")}}

	m := New(store, provider, nil, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statusUpdates) == 1
	})

	if store.statusUpdates[0].status != job.StatusRateLimited {
		t.Errorf("job status = %s, want rate_limited", store.statusUpdates[0].status)
	}
	if len(store.mirrorCalls) != 1 || store.mirrorCalls[0].status != "rate_limited" {
		t.Errorf("mirror calls = %+v, want one rate_limited mirror", store.mirrorCalls)
	}
	if got := store.jobAttempts("job-1"); got != 0 {
		t.Errorf("attempts = %d, want 0 (rate limit never consumes an attempt)", got)
	}

	m.mu.Lock()
	_, paused := m.paused[job.TaskEnrichEntitySummaryKeywords]
	m.mu.Unlock()
	if !paused {
		t.Error("expected task type to be paused after rate limit")
	}
}

func TestManager_ProviderError_RetriesUnderMaxAttempts(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &codeentity.Entity{ID: "e1"}
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "e1", TargetEntityType: job.TargetCodeEntity,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, Attempts: 0, MaxAttempts: 3,
	}}
	provider := &fakeProvider{enrichErr: &job.ProviderError{Err: errors.New("timeout")}}

	m := New(store, provider, nil, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statusUpdates) == 1
	})

	if store.statusUpdates[0].status != job.StatusRetryAI {
		t.Errorf("job status = %s, want retry_ai", store.statusUpdates[0].status)
	}
	if got := store.jobAttempts("job-1"); got != 1 {
		t.Errorf("attempts = %d, want 1 (retry_ai consumes an attempt)", got)
	}
}

func TestManager_ProviderError_FailsAfterMaxAttempts(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &codeentity.Entity{ID: "e1"}
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "e1", TargetEntityType: job.TargetCodeEntity,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, Attempts: 2, MaxAttempts: 3,
	}}
	provider := &fakeProvider{enrichErr: &job.ProviderError{Err: errors.New("still failing")}}

	m := New(store, provider, nil, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statusUpdates) == 1
	})

	if store.statusUpdates[0].status != job.StatusFailedAI {
		t.Errorf("job status = %s, want failed_ai", store.statusUpdates[0].status)
	}
	if len(store.mirrorCalls) != 1 || store.mirrorCalls[0].status != "failed_ai" {
		t.Errorf("mirror calls = %+v, want one failed_ai mirror", store.mirrorCalls)
	}
}

func TestManager_PayloadParseError_IsTerminal(t *testing.T) {
	store := newFakeStore()
	store.entities["e1"] = &codeentity.Entity{ID: "e1"}
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "e1", TargetEntityType: job.TargetCodeEntity,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, MaxAttempts: 3,
	}}
	provider := &fakeProvider{enrichErr: job.ErrPayloadParse}

	m := New(store, provider, nil, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statusUpdates) == 1
	})

	if store.statusUpdates[0].status != job.StatusFailedPayloadParsing {
		t.Errorf("job status = %s, want failed_payload_parsing", store.statusUpdates[0].status)
	}
	if got := store.jobAttempts("job-1"); got != 0 {
		t.Errorf("attempts = %d, want 0 (payload parse failure never consumes an attempt)", got)
	}
}

func TestManager_UnknownTaskTargetPair_FailsJobLogic(t *testing.T) {
	store := newFakeStore()
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "c1", TargetEntityType: job.TargetConversation,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, MaxAttempts: 3,
	}}
	provider := &fakeProvider{}

	m := New(store, provider, nil, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.statusUpdates) == 1
	})

	if store.statusUpdates[0].status != job.StatusFailedJobLogic {
		t.Errorf("job status = %s, want failed_job_logic", store.statusUpdates[0].status)
	}
}

func TestManager_GenerateTopics_Success(t *testing.T) {
	store := newFakeStore()
	store.messages["conv-1"] = []conversation.Message{
		{ID: "m1", ConversationID: "conv-1", Role: "user", Content: "how does auth work"},
		{ID: "m2", ConversationID: "conv-1", Role: "assistant", Content: "it uses JWT"},
	}
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "conv-1", TargetEntityType: job.TargetConversation,
		TaskType: job.TaskGenerateTopics, Status: job.StatusPending, MaxAttempts: 3,
	}}
	provider := &fakeProvider{topicsRes: []ai.GeneratedTopic{{Summary: "auth design", Keywords: []string{"jwt", "auth"}}}}

	m := New(store, provider, nil, nil, nil, testConfig())
	m.runCycle(context.Background())

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.topics) == 1
	})

	if store.topics[0].ConversationID != "conv-1" {
		t.Errorf("topic conversation id = %q, want conv-1", store.topics[0].ConversationID)
	}
}

func TestManager_ReentrancyGuard_SkipsOverlappingCycle(t *testing.T) {
	store := newFakeStore()
	m := New(store, &fakeProvider{}, nil, nil, nil, testConfig())

	m.mu.Lock()
	m.cycling = true
	m.mu.Unlock()

	m.runCycle(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.processingCalls) != 0 {
		t.Error("expected runCycle to no-op while a prior cycle is in flight")
	}
}

func TestManager_PausedTaskType_IsExcludedFromFetch(t *testing.T) {
	store := newFakeStore()
	store.jobs = []job.Job{{
		JobID: "job-1", TargetEntityID: "e1", TargetEntityType: job.TargetCodeEntity,
		TaskType: job.TaskEnrichEntitySummaryKeywords, Status: job.StatusPending, MaxAttempts: 3,
	}}
	m := New(store, &fakeProvider{}, nil, nil, nil, testConfig())
	m.pauseTaskType(job.TaskEnrichEntitySummaryKeywords, time.Minute)

	m.runCycle(context.Background())

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.processingCalls) != 0 {
		t.Error("expected paused task type to be excluded from dispatch")
	}
}
