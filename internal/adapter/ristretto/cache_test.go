package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/contextengine/retrieval/internal/config"
	"github.com/contextengine/retrieval/internal/domain/codeentity"
	"github.com/contextengine/retrieval/internal/domain/document"
	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/port/database"
)

// countingStore stubs the two hydration lookups and counts how often each
// reaches the inner store. The embedded nil Store panics on anything else,
// which is the point: only decorated methods should be exercised here.
type countingStore struct {
	database.Store

	entityCalls   int
	documentCalls int
}

func (s *countingStore) GetCodeEntity(_ context.Context, id string) (*codeentity.Entity, error) {
	s.entityCalls++
	return &codeentity.Entity{ID: id, Content: "func a() {}", AIStatus: codeentity.StatusPending}, nil
}

func (s *countingStore) GetProjectDocument(_ context.Context, id string) (*document.Document, error) {
	s.documentCalls++
	return &document.Document{ID: id, Content: "# readme"}, nil
}

func (s *countingStore) UpdateCodeEntitySummaryKeywords(_ context.Context, _, _ string, _ []string) error {
	return nil
}

func (s *countingStore) MirrorEntityAIStatus(_ context.Context, _ string, _ job.TargetEntityType, _, _ string) error {
	return nil
}

func newTestCachedStore(t *testing.T, inner database.Store) *CachedStore {
	t.Helper()
	cached, err := NewCachedStore(inner, config.Cache{
		MaxCounters: 10_000,
		MaxCostMB:   8,
		TTL:         time.Minute,
	})
	if err != nil {
		t.Fatalf("NewCachedStore: %v", err)
	}
	t.Cleanup(cached.Close)
	return cached
}

func TestCachedStore_SecondEntityLookupHitsCache(t *testing.T) {
	inner := &countingStore{}
	cached := newTestCachedStore(t, inner)
	ctx := context.Background()

	if _, err := cached.GetCodeEntity(ctx, "e1"); err != nil {
		t.Fatalf("GetCodeEntity: %v", err)
	}
	cached.entities.Wait()

	if _, err := cached.GetCodeEntity(ctx, "e1"); err != nil {
		t.Fatalf("GetCodeEntity: %v", err)
	}
	if inner.entityCalls != 1 {
		t.Errorf("inner entity calls = %d, want 1", inner.entityCalls)
	}
}

func TestCachedStore_SecondDocumentLookupHitsCache(t *testing.T) {
	inner := &countingStore{}
	cached := newTestCachedStore(t, inner)
	ctx := context.Background()

	if _, err := cached.GetProjectDocument(ctx, "d1"); err != nil {
		t.Fatalf("GetProjectDocument: %v", err)
	}
	cached.documents.Wait()

	if _, err := cached.GetProjectDocument(ctx, "d1"); err != nil {
		t.Fatalf("GetProjectDocument: %v", err)
	}
	if inner.documentCalls != 1 {
		t.Errorf("inner document calls = %d, want 1", inner.documentCalls)
	}
}

func TestCachedStore_EnrichmentWriteBackEvictsEntity(t *testing.T) {
	inner := &countingStore{}
	cached := newTestCachedStore(t, inner)
	ctx := context.Background()

	_, _ = cached.GetCodeEntity(ctx, "e1")
	cached.entities.Wait()

	if err := cached.UpdateCodeEntitySummaryKeywords(ctx, "e1", "summary", []string{"kw"}); err != nil {
		t.Fatalf("UpdateCodeEntitySummaryKeywords: %v", err)
	}
	cached.entities.Wait()

	_, _ = cached.GetCodeEntity(ctx, "e1")
	if inner.entityCalls != 2 {
		t.Errorf("inner entity calls = %d, want 2 after eviction", inner.entityCalls)
	}
}

func TestCachedStore_MirrorStatusEvictsTarget(t *testing.T) {
	inner := &countingStore{}
	cached := newTestCachedStore(t, inner)
	ctx := context.Background()

	_, _ = cached.GetCodeEntity(ctx, "e1")
	cached.entities.Wait()

	if err := cached.MirrorEntityAIStatus(ctx, "e1", job.TargetCodeEntity, "failed_ai", "boom"); err != nil {
		t.Fatalf("MirrorEntityAIStatus: %v", err)
	}
	cached.entities.Wait()

	_, _ = cached.GetCodeEntity(ctx, "e1")
	if inner.entityCalls != 2 {
		t.Errorf("inner entity calls = %d, want 2 after eviction", inner.entityCalls)
	}
}
