package gitmonitor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/contextengine/retrieval/internal/domain/codeentity"
	"github.com/contextengine/retrieval/internal/domain/conversation"
	"github.com/contextengine/retrieval/internal/domain/document"
	"github.com/contextengine/retrieval/internal/domain/gitlog"
	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/domain/relationship"
	"github.com/contextengine/retrieval/internal/git"
	"github.com/contextengine/retrieval/internal/port/database"
)

var _ database.Store = (*fakeGitStore)(nil)

type fakeGitStore struct {
	mu            sync.Mutex
	lastOID       string
	insertedCommits []gitlog.Commit
	insertedFiles   map[string][]gitlog.CommitFile
}

func newFakeGitStore() *fakeGitStore {
	return &fakeGitStore{insertedFiles: make(map[string][]gitlog.CommitFile)}
}

func (s *fakeGitStore) GetLastProcessedCommitOID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOID, nil
}
func (s *fakeGitStore) SetLastProcessedCommitOID(_ context.Context, oid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastOID = oid
	return nil
}
func (s *fakeGitStore) InsertGitCommit(_ context.Context, c *gitlog.Commit, files []gitlog.CommitFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertedCommits = append(s.insertedCommits, *c)
	s.insertedFiles[c.Hash] = files
	return nil
}

func (s *fakeGitStore) GetCodeEntity(_ context.Context, _ string) (*codeentity.Entity, error) {
	return nil, errors.New("not found")
}
func (s *fakeGitStore) SearchCodeEntitiesFTS(_ context.Context, _ string, _ int) ([]codeentity.FTSHit, error) {
	return nil, nil
}
func (s *fakeGitStore) GetProjectDocument(_ context.Context, _ string) (*document.Document, error) {
	return nil, errors.New("not found")
}
func (s *fakeGitStore) SearchDocumentsFTS(_ context.Context, _ string, _ int) ([]document.FTSHit, error) {
	return nil, nil
}
func (s *fakeGitStore) SearchKeywordIndex(_ context.Context, _ []string, _ int) ([]database.KeywordHit, error) {
	return nil, nil
}
func (s *fakeGitStore) RelatedEntities(_ context.Context, _ string, _ []relationship.Type) ([]relationship.Relationship, error) {
	return nil, nil
}
func (s *fakeGitStore) GetConversationMessage(_ context.Context, _ string) (*conversation.Message, error) {
	return nil, errors.New("not found")
}
func (s *fakeGitStore) SearchConversationMessages(_ context.Context, _, _ string, _ int) ([]conversation.MessageHit, error) {
	return nil, nil
}
func (s *fakeGitStore) SearchConversationTopics(_ context.Context, _ string, _ []string, _ int) ([]conversation.Topic, error) {
	return nil, nil
}
func (s *fakeGitStore) RecentConversationTopics(_ context.Context, _ string, _ int) ([]conversation.Topic, error) {
	return nil, nil
}
func (s *fakeGitStore) ListConversationMessages(_ context.Context, _ string, _ int) ([]conversation.Message, error) {
	return nil, nil
}
func (s *fakeGitStore) InsertConversationTopic(_ context.Context, _ *conversation.Topic) error {
	return nil
}
func (s *fakeGitStore) GetGitCommit(_ context.Context, _ string) (*gitlog.Commit, error) {
	return nil, errors.New("not found")
}
func (s *fakeGitStore) SearchGitCommits(_ context.Context, _ []string, _ int) ([]gitlog.CommitHit, error) {
	return nil, nil
}
func (s *fakeGitStore) SearchGitCommitFileChanges(_ context.Context, _ []string, _ int) ([]gitlog.FileChangeHit, error) {
	return nil, nil
}
func (s *fakeGitStore) EnqueueJob(_ context.Context, _ *job.Job) error { return nil }
func (s *fakeGitStore) FetchPendingJobs(_ context.Context, _ int, _ []job.TaskType) ([]job.Job, error) {
	return nil, nil
}
func (s *fakeGitStore) MarkJobProcessing(_ context.Context, _ string) error    { return nil }
func (s *fakeGitStore) IncrementJobAttempts(_ context.Context, _ string) error { return nil }
func (s *fakeGitStore) UpdateJobStatus(_ context.Context, _ string, _ job.Status, _ string) error {
	return nil
}
func (s *fakeGitStore) MirrorEntityAIStatus(_ context.Context, _ string, _ job.TargetEntityType, _, _ string) error {
	return nil
}
func (s *fakeGitStore) UpdateCodeEntitySummaryKeywords(_ context.Context, _, _ string, _ []string) error {
	return nil
}
func (s *fakeGitStore) UpdateProjectDocumentSummaryKeywords(_ context.Context, _, _ string, _ []string) error {
	return nil
}
func (s *fakeGitStore) ProjectStructureSummary(_ context.Context) (string, error)     { return "", nil }
func (s *fakeGitStore) ArchitectureContextSummary(_ context.Context) (string, error) { return "", nil }

func initTestRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
	dir := t.TempDir()
	runGitCmd(t, dir, "init", "-b", "main")
	runGitCmd(t, dir, "config", "user.email", "test@test.com")
	runGitCmd(t, dir, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, dir, "add", ".")
	runGitCmd(t, dir, "commit", "-m", "initial commit")
	return dir
}

func runGitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func TestMonitor_Poll_FirstRun_InsertsExistingCommit(t *testing.T) {
	repo := initTestRepo(t)
	store := newFakeGitStore()
	m := New(store, git.NewPool(1), repo, 0)

	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if len(store.insertedCommits) != 1 {
		t.Fatalf("insertedCommits = %d, want 1", len(store.insertedCommits))
	}
	if store.insertedCommits[0].Message != "initial commit" {
		t.Errorf("message = %q, want %q", store.insertedCommits[0].Message, "initial commit")
	}
	if store.lastOID != store.insertedCommits[0].Hash {
		t.Errorf("watermark = %q, want %q", store.lastOID, store.insertedCommits[0].Hash)
	}

	files := store.insertedFiles[store.insertedCommits[0].Hash]
	if len(files) != 1 || files[0].Path != "hello.txt" || files[0].Status != gitlog.FileAdded {
		t.Errorf("files = %+v, want one added hello.txt", files)
	}
}

func TestMonitor_Poll_SecondRun_OnlyNewCommits(t *testing.T) {
	repo := initTestRepo(t)
	store := newFakeGitStore()
	m := New(store, git.NewPool(1), repo, 0)

	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll: %v", err)
	}

	if err := os.WriteFile(filepath.Join(repo, "second.txt"), []byte("more"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGitCmd(t, repo, "add", ".")
	runGitCmd(t, repo, "commit", "-m", "second commit")

	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("second Poll: %v", err)
	}

	if len(store.insertedCommits) != 2 {
		t.Fatalf("insertedCommits = %d, want 2", len(store.insertedCommits))
	}
	if store.insertedCommits[1].Message != "second commit" {
		t.Errorf("second commit message = %q", store.insertedCommits[1].Message)
	}
}

func TestMonitor_Poll_NoNewCommits_IsNoOp(t *testing.T) {
	repo := initTestRepo(t)
	store := newFakeGitStore()
	m := New(store, git.NewPool(1), repo, 0)

	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll: %v", err)
	}
	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("second Poll: %v", err)
	}

	if len(store.insertedCommits) != 1 {
		t.Fatalf("insertedCommits = %d, want 1 (no duplicate insert)", len(store.insertedCommits))
	}
}
