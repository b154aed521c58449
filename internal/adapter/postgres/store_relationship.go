package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/contextengine/retrieval/internal/domain/relationship"
)

// RelatedEntities fetches one-hop relationships where entityID is either
// endpoint, optionally filtered to the given relationship types. An empty
// types slice means no filter.
func (s *Store) RelatedEntities(ctx context.Context, entityID string, types []relationship.Type) ([]relationship.Relationship, error) {
	const baseQuery = `SELECT id, source_entity_id, target_entity_id, relationship_type, metadata
		 FROM code_relationships
		 WHERE source_entity_id = $1 OR target_entity_id = $1`

	var rows pgx.Rows
	var err error

	if len(types) == 0 {
		rows, err = s.pool.Query(ctx, baseQuery, entityID)
	} else {
		typeStrs := make([]string, len(types))
		for i, t := range types {
			typeStrs[i] = string(t)
		}
		rows, err = s.pool.Query(ctx, baseQuery+" AND relationship_type = ANY($2)", entityID, pgTextArray(typeStrs))
	}
	if err != nil {
		return nil, fmt.Errorf("related entities %s: %w", entityID, err)
	}
	defer rows.Close()

	var out []relationship.Relationship
	for rows.Next() {
		var r relationship.Relationship
		var metaRaw []byte
		if err := rows.Scan(&r.ID, &r.SourceEntityID, &r.TargetEntityID, &r.Type, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &r.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal relationship metadata: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
