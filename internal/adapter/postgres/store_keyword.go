package postgres

import (
	"context"
	"fmt"

	"github.com/contextengine/retrieval/internal/port/database"
)

// SearchKeywordIndex queries the shared entity_keywords table, whose rows
// key by an id that may reference either a code entity or a project
// document. Resolving which is the caller's job (database.Store's contract).
func (s *Store) SearchKeywordIndex(ctx context.Context, terms []string, limit int) ([]database.KeywordHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, SUM(weight) AS total_weight, COUNT(*) AS match_count
		 FROM entity_keywords
		 WHERE keyword = ANY($1)
		 GROUP BY id
		 ORDER BY total_weight DESC
		 LIMIT $2`, pgTextArray(terms), limit)
	if err != nil {
		return nil, fmt.Errorf("search keyword index: %w", err)
	}
	defer rows.Close()

	var hits []database.KeywordHit
	for rows.Next() {
		var h database.KeywordHit
		if err := rows.Scan(&h.ID, &h.TotalWeight, &h.MatchCount); err != nil {
			return nil, fmt.Errorf("scan keyword hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
