package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/contextengine/retrieval/internal/domain/gitlog"
)

func (s *Store) GetGitCommit(ctx context.Context, hash string) (*gitlog.Commit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT hash, author, message, commit_date FROM git_commits WHERE hash = $1`, hash)

	var c gitlog.Commit
	if err := row.Scan(&c.Hash, &c.Author, &c.Message, &c.CommitDate); err != nil {
		return nil, notFoundWrap(err, "get git commit %s", hash)
	}
	return &c, nil
}

// SearchGitCommits matches commits regardless of git intent; message and
// author weighting happens in the candidate generator's scoring, so this
// returns every commit whose search vector matches any term, newest first.
func (s *Store) SearchGitCommits(ctx context.Context, terms []string, limit int) ([]gitlog.CommitHit, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT hash,
		        ts_rank(search_vector, to_tsquery('english', $1)) AS rank,
		        author
		 FROM git_commits
		 WHERE search_vector @@ to_tsquery('english', $1)
		 ORDER BY commit_date DESC
		 LIMIT $2`, joinTSQuery(terms), limit)
	if err != nil {
		return nil, fmt.Errorf("search git commits: %w", err)
	}
	defer rows.Close()

	var hits []gitlog.CommitHit
	for rows.Next() {
		var h gitlog.CommitHit
		var author string
		if err := rows.Scan(&h.Hash, &h.Rank, &author); err != nil {
			return nil, fmt.Errorf("scan git commit hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) SearchGitCommitFileChanges(ctx context.Context, pathTerms []string, limit int) ([]gitlog.FileChangeHit, error) {
	if len(pathTerms) == 0 {
		return nil, nil
	}
	pattern := "%" + pathTerms[0] + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT commit_hash, path, status
		 FROM git_commit_files
		 WHERE path ILIKE $1
		 ORDER BY commit_hash DESC
		 LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search git commit file changes: %w", err)
	}
	defer rows.Close()

	var hits []gitlog.FileChangeHit
	for rows.Next() {
		var h gitlog.FileChangeHit
		if err := rows.Scan(&h.CommitHash, &h.Path, &h.Status); err != nil {
			return nil, fmt.Errorf("scan git commit file change hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// InsertGitCommit persists a commit and its file changes in one transaction,
// the unit the git monitor appends per newly observed commit.
func (s *Store) InsertGitCommit(ctx context.Context, c *gitlog.Commit, files []gitlog.CommitFile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO git_commits (hash, author, message, commit_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (hash) DO NOTHING`, c.Hash, c.Author, c.Message, c.CommitDate); err != nil {
		return fmt.Errorf("insert git commit %s: %w", c.Hash, err)
	}

	batch := &pgx.Batch{}
	for _, f := range files {
		batch.Queue(
			`INSERT INTO git_commit_files (commit_hash, path, status)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (commit_hash, path) DO NOTHING`, f.CommitHash, f.Path, f.Status)
	}
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("insert git commit file %d for %s: %w", i, c.Hash, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close commit file batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert commit tx: %w", err)
	}
	return nil
}

func (s *Store) GetLastProcessedCommitOID(ctx context.Context) (string, error) {
	var oid string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM kv WHERE key = 'last_processed_commit_oid'`).Scan(&oid)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("get last processed commit oid: %w", err)
	}
	return oid, nil
}

func (s *Store) SetLastProcessedCommitOID(ctx context.Context, oid string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv (key, value) VALUES ('last_processed_commit_oid', $1)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, oid)
	if err != nil {
		return fmt.Errorf("set last processed commit oid: %w", err)
	}
	return nil
}

func joinTSQuery(terms []string) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += " | "
		}
		out += t
	}
	return out
}
