package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation pairs exactly two users. Participant ids are stored with the
// numerically smaller id first so each unordered pair maps to one row.
type Conversation struct {
	ID             uuid.UUID `json:"id"`
	UserID1        int64     `json:"user_id_1"`
	UserID2        int64     `json:"user_id_2"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID int64) bool {
	return c.UserID1 == userID || c.UserID2 == userID
}

// Peer returns the other participant's id.
func (c *Conversation) Peer(userID int64) int64 {
	if c.UserID1 == userID {
		return c.UserID2
	}
	return c.UserID1
}

// CanonicalPair orders two user ids the way conversation rows store them.
func CanonicalPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// ConversationSummary is a conversation as listed for one of its participants.
type ConversationSummary struct {
	ID             uuid.UUID `json:"id"`
	Peer           int64     `json:"peer_id"`
	PeerUsername   string    `json:"peer_username,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}
