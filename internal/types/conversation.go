package types

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Conversation represents a chat conversation. Estado is the optional
// Mexican-state jurisdiction code the conversation is filtered to.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Title     *string   `json:"title"`
	Estado    *string   `json:"estado,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message represents a single message in a conversation. Messages are
// append-only; only whole conversations are deleted.
type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ConversationWithMessages includes a conversation and its messages.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}
