package model

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one persisted chat message.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	Content        string     `json:"content"`
	SentAt         time.Time  `json:"sent_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// EditMessageRequest is the request to replace a message's content.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// EditMessageResponse is returned after a successful edit.
type EditMessageResponse struct {
	EditedAt time.Time `json:"edited_at"`
}

// ListMessagesResponse is one page of a conversation's history, newest first.
// NextCursor is the oldest returned message's sent time and continues the walk
// strictly backwards.
type ListMessagesResponse struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}
