package postgres

import (
	"context"
	"fmt"

	"github.com/contextengine/retrieval/internal/domain/document"
)

func (s *Store) GetProjectDocument(ctx context.Context, id string) (*document.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, path, title, content, summary, keywords, ai_status, ai_error, created_at, updated_at
		 FROM project_documents WHERE id = $1`, id)

	var d document.Document
	var keywords []string
	err := row.Scan(&d.ID, &d.ProjectID, &d.Path, &d.Title, &d.Content, &d.Summary, &keywords,
		&d.AIStatus, &d.AIError, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get project document %s", id)
	}
	d.Keywords = orEmpty(keywords)
	return &d, nil
}

func (s *Store) SearchDocumentsFTS(ctx context.Context, ftsExpression string, limit int) ([]document.FTSHit, error) {
	if ftsExpression == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id,
		        ts_rank(search_vector, to_tsquery('english', $1)) AS rank,
		        ts_headline('english', content, to_tsquery('english', $1),
		                    'MaxFragments=1, MaxWords=40, MinWords=15') AS highlight
		 FROM project_documents
		 WHERE search_vector @@ to_tsquery('english', $1)
		 ORDER BY rank DESC
		 LIMIT $2`, ftsExpression, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents fts: %w", err)
	}
	defer rows.Close()

	var hits []document.FTSHit
	for rows.Next() {
		var h document.FTSHit
		if err := rows.Scan(&h.DocumentID, &h.Rank, &h.Highlight); err != nil {
			return nil, fmt.Errorf("scan document fts hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// UpdateProjectDocumentSummaryKeywords writes an enrichment job's output
// onto a project document and marks it completed.
func (s *Store) UpdateProjectDocumentSummaryKeywords(ctx context.Context, id, summary string, keywords []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE project_documents
		 SET summary = $2, keywords = $3, ai_status = $4, ai_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id, summary, pgTextArray(keywords), document.StatusCompleted)
	return execExpectOne(tag, err, "update project document %s summary/keywords", id)
}
