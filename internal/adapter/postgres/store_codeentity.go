package postgres

import (
	"context"
	"fmt"

	"github.com/contextengine/retrieval/internal/domain/codeentity"
)

func (s *Store) GetCodeEntity(ctx context.Context, id string) (*codeentity.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, file_path, name, entity_type, language, content,
		        start_line, end_line, summary, keywords, ai_status, ai_error, created_at, updated_at
		 FROM code_entities WHERE id = $1`, id)

	var e codeentity.Entity
	var keywords []string
	err := row.Scan(&e.ID, &e.ProjectID, &e.FilePath, &e.Name, &e.EntityType, &e.Language, &e.Content,
		&e.StartLine, &e.EndLine, &e.Summary, &keywords, &e.AIStatus, &e.AIError, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get code entity %s", id)
	}
	e.Keywords = orEmpty(keywords)
	return &e, nil
}

func (s *Store) SearchCodeEntitiesFTS(ctx context.Context, ftsExpression string, limit int) ([]codeentity.FTSHit, error) {
	if ftsExpression == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id,
		        ts_rank(search_vector, to_tsquery('english', $1)) AS rank,
		        ts_headline('english', content, to_tsquery('english', $1),
		                    'MaxFragments=1, MaxWords=40, MinWords=15') AS highlight
		 FROM code_entities
		 WHERE search_vector @@ to_tsquery('english', $1)
		 ORDER BY rank DESC
		 LIMIT $2`, ftsExpression, limit)
	if err != nil {
		return nil, fmt.Errorf("search code entities fts: %w", err)
	}
	defer rows.Close()

	var hits []codeentity.FTSHit
	for rows.Next() {
		var h codeentity.FTSHit
		if err := rows.Scan(&h.EntityID, &h.Rank, &h.Highlight); err != nil {
			return nil, fmt.Errorf("scan code entity fts hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// UpdateCodeEntitySummaryKeywords writes an enrichment job's output onto a
// code entity and marks it completed. The job manager mirrors status
// separately via MirrorEntityAIStatus on failure paths; on success this
// call is the single write.
func (s *Store) UpdateCodeEntitySummaryKeywords(ctx context.Context, id, summary string, keywords []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE code_entities
		 SET summary = $2, keywords = $3, ai_status = $4, ai_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id, summary, pgTextArray(keywords), codeentity.StatusCompleted)
	return execExpectOne(tag, err, "update code entity %s summary/keywords", id)
}
