// Package conversation holds conversation-scoped chat history and
// AI-generated topic summaries, the two sources retrieval draws on for
// "what has this conversation already covered".
package conversation

import "time"

// Message is a single turn in a conversation, tied to a conversationId.
type Message struct {
	ID             string
	ConversationID string
	Role           string // "user", "assistant", "system", "tool"
	Content        string
	CreatedAt      time.Time
}

// Topic is an AI-generated summary of a conversation thread, searched
// against both its Summary and its Keywords.
type Topic struct {
	ID             string
	ConversationID string
	Summary        string
	Keywords       []string
	CreatedAt      time.Time
}

// MessageHit is one full-text search result row over conversation messages,
// scoped to the active conversation.
type MessageHit struct {
	MessageID string
	Rank      float64
	Highlight string
}
