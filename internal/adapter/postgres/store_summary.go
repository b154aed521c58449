package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ProjectStructureSummary and ArchitectureContextSummary back
// initialize_conversation_context. Both are precomputed by the ingestion
// path (outside this engine) and simply read from the kv table here, the
// same key/value table the git monitor uses for its watermark.
func (s *Store) ProjectStructureSummary(ctx context.Context) (string, error) {
	return s.kvGet(ctx, "project_structure_summary")
}

func (s *Store) ArchitectureContextSummary(ctx context.Context) (string, error) {
	return s.kvGet(ctx, "architecture_context_summary")
}

func (s *Store) kvGet(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, nil
}
