// Package ristretto caches full-record hydration in front of the storage
// port. Within one retrieval call the same code entity is often hydrated
// more than once - first as an FTS or keyword hit, then again as a
// relationship neighbor of another seed - and across calls in the same
// conversation the hot entities repeat. A TTL'd in-process cache collapses
// those lookups into one storage round trip.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/contextengine/retrieval/internal/config"
	"github.com/contextengine/retrieval/internal/domain/codeentity"
	"github.com/contextengine/retrieval/internal/domain/document"
	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/port/database"
)

// CachedStore decorates a database.Store with ristretto caches for the two
// hydration lookups the pipeline hammers: GetCodeEntity and
// GetProjectDocument. Everything else passes through. Writes that change a
// cached record (enrichment write-back, AI-status mirroring) evict it so
// ranking never sees a stale aiStatus for longer than one lookup.
type CachedStore struct {
	database.Store

	entities  *ristretto.Cache[string, *codeentity.Entity]
	documents *ristretto.Cache[string, *document.Document]
	ttl       time.Duration
}

// NewCachedStore wraps inner with hydration caches sized per cfg.
func NewCachedStore(inner database.Store, cfg config.Cache) (*CachedStore, error) {
	maxCost := cfg.MaxCostMB * 1024 * 1024

	entities, err := ristretto.NewCache(&ristretto.Config[string, *codeentity.Entity]{
		NumCounters: cfg.MaxCounters,
		MaxCost:     maxCost / 2,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	documents, err := ristretto.NewCache(&ristretto.Config[string, *document.Document]{
		NumCounters: cfg.MaxCounters,
		MaxCost:     maxCost / 2,
		BufferItems: 64,
	})
	if err != nil {
		entities.Close()
		return nil, err
	}

	return &CachedStore{
		Store:     inner,
		entities:  entities,
		documents: documents,
		ttl:       cfg.TTL,
	}, nil
}

// GetCodeEntity returns the cached entity when present, otherwise hydrates
// through the inner store and caches the result. Misses and errors are not
// cached.
func (s *CachedStore) GetCodeEntity(ctx context.Context, id string) (*codeentity.Entity, error) {
	if e, ok := s.entities.Get(id); ok {
		return e, nil
	}
	e, err := s.Store.GetCodeEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	s.entities.SetWithTTL(id, e, entityCost(e), s.ttl)
	return e, nil
}

// GetProjectDocument returns the cached document when present, otherwise
// hydrates through the inner store and caches the result.
func (s *CachedStore) GetProjectDocument(ctx context.Context, id string) (*document.Document, error) {
	if d, ok := s.documents.Get(id); ok {
		return d, nil
	}
	d, err := s.Store.GetProjectDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	s.documents.SetWithTTL(id, d, documentCost(d), s.ttl)
	return d, nil
}

// UpdateCodeEntitySummaryKeywords writes through and evicts the entity.
func (s *CachedStore) UpdateCodeEntitySummaryKeywords(ctx context.Context, id, summary string, keywords []string) error {
	if err := s.Store.UpdateCodeEntitySummaryKeywords(ctx, id, summary, keywords); err != nil {
		return err
	}
	s.entities.Del(id)
	return nil
}

// UpdateProjectDocumentSummaryKeywords writes through and evicts the
// document.
func (s *CachedStore) UpdateProjectDocumentSummaryKeywords(ctx context.Context, id, summary string, keywords []string) error {
	if err := s.Store.UpdateProjectDocumentSummaryKeywords(ctx, id, summary, keywords); err != nil {
		return err
	}
	s.documents.Del(id)
	return nil
}

// MirrorEntityAIStatus writes through and evicts whichever cache the
// target lives in.
func (s *CachedStore) MirrorEntityAIStatus(ctx context.Context, targetID string, targetType job.TargetEntityType, status, errMsg string) error {
	if err := s.Store.MirrorEntityAIStatus(ctx, targetID, targetType, status, errMsg); err != nil {
		return err
	}
	switch targetType {
	case job.TargetCodeEntity:
		s.entities.Del(targetID)
	case job.TargetProjectDocument:
		s.documents.Del(targetID)
	}
	return nil
}

// Close releases both caches.
func (s *CachedStore) Close() {
	s.entities.Close()
	s.documents.Close()
}

func entityCost(e *codeentity.Entity) int64 {
	return int64(len(e.Content) + len(e.Summary) + 256)
}

func documentCost(d *document.Document) int64 {
	return int64(len(d.Content) + len(d.Summary) + 256)
}
