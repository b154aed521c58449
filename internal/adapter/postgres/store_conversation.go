package postgres

import (
	"context"
	"fmt"

	"github.com/contextengine/retrieval/internal/domain/conversation"
)

func (s *Store) GetConversationMessage(ctx context.Context, id string) (*conversation.Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM conversation_messages WHERE id = $1`, id)

	var m conversation.Message
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
		return nil, notFoundWrap(err, "get conversation message %s", id)
	}
	return &m, nil
}

func (s *Store) SearchConversationMessages(ctx context.Context, conversationID, ftsExpression string, limit int) ([]conversation.MessageHit, error) {
	if ftsExpression == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id,
		        ts_rank(search_vector, to_tsquery('english', $2)) AS rank,
		        ts_headline('english', content, to_tsquery('english', $2),
		                    'MaxFragments=1, MaxWords=40, MinWords=15') AS highlight
		 FROM conversation_messages
		 WHERE conversation_id = $1 AND search_vector @@ to_tsquery('english', $2)
		 ORDER BY rank DESC
		 LIMIT $3`, conversationID, ftsExpression, limit)
	if err != nil {
		return nil, fmt.Errorf("search conversation messages: %w", err)
	}
	defer rows.Close()

	var hits []conversation.MessageHit
	for rows.Next() {
		var h conversation.MessageHit
		if err := rows.Scan(&h.MessageID, &h.Rank, &h.Highlight); err != nil {
			return nil, fmt.Errorf("scan conversation message hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) SearchConversationTopics(ctx context.Context, conversationID string, terms []string, limit int) ([]conversation.Topic, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, summary, keywords, created_at
		 FROM conversation_topics
		 WHERE conversation_id = $1
		   AND (keywords && $2 OR search_vector @@ plainto_tsquery('english', $3))
		 ORDER BY created_at DESC
		 LIMIT $4`, conversationID, pgTextArray(terms), joinTerms(terms), limit)
	if err != nil {
		return nil, fmt.Errorf("search conversation topics: %w", err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

func (s *Store) RecentConversationTopics(ctx context.Context, conversationID string, limit int) ([]conversation.Topic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, summary, keywords, created_at
		 FROM conversation_topics
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent conversation topics: %w", err)
	}
	defer rows.Close()
	return scanTopics(rows)
}

// ListConversationMessages returns up to limit messages for conversationID
// in chronological order, the transcript the generate_topics handler feeds
// to the enrichment provider.
func (s *Store) ListConversationMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM conversation_messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	var messages []conversation.Message
	for rows.Next() {
		var m conversation.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// InsertConversationTopic persists one AI-generated topic summary, the
// generate_topics handler's write-back.
func (s *Store) InsertConversationTopic(ctx context.Context, t *conversation.Topic) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_topics (id, conversation_id, summary, keywords, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		t.ID, t.ConversationID, t.Summary, pgTextArray(t.Keywords))
	if err != nil {
		return fmt.Errorf("insert conversation topic: %w", err)
	}
	return nil
}

func scanTopics(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]conversation.Topic, error) {
	var topics []conversation.Topic
	for rows.Next() {
		var t conversation.Topic
		var keywords []string
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Summary, &keywords, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation topic: %w", err)
		}
		t.Keywords = orEmpty(keywords)
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

func joinTerms(terms []string) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
