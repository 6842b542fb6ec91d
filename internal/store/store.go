// Package store defines the durable storage interfaces and their
// Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat/internal/model"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrNotParticipant indicates the user is not one of the conversation's two participants.
	ErrNotParticipant = errors.New("store: user is not a conversation participant")
	// ErrNotAuthor indicates the user did not send the message they tried to mutate.
	ErrNotAuthor = errors.New("store: user is not the message author")
	// ErrDuplicateUser indicates the username or email is already taken.
	ErrDuplicateUser = errors.New("store: username or email already taken")
	// ErrConversationExists indicates a conversation already exists for the pair.
	ErrConversationExists = errors.New("store: conversation already exists for this pair")
	// ErrCodeLimit indicates the issuer already holds the maximum number of live codes.
	ErrCodeLimit = errors.New("store: chat code limit reached")
	// ErrDuplicateCode indicates the generated code value is already in use.
	ErrDuplicateCode = errors.New("store: chat code already exists")
)

// UserStore manages account rows.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*model.User, error)
	UserByID(ctx context.Context, id int64) (*model.User, error)
	UserByUsername(ctx context.Context, username string) (*model.User, error)
	UserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, id int64, username, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
	// DeleteUser removes the account and cascades to its codes,
	// conversations and messages.
	DeleteUser(ctx context.Context, id int64) error
}

// ChatCodeStore manages the short-lived numeric codes used to open conversations.
type ChatCodeStore interface {
	// CreateChatCode inserts a code owned by userID. Returns ErrCodeLimit when
	// the user already holds model.MaxChatCodesPerUser codes, ErrDuplicateCode
	// when the value collides with an existing code.
	CreateChatCode(ctx context.Context, code int, userID int64) error
	ChatCodeOwner(ctx context.Context, code int) (int64, error)
	ListChatCodes(ctx context.Context, userID int64) ([]model.ChatCode, error)
	DeleteChatCode(ctx context.Context, code int, userID int64) error
}

// ConversationStore manages conversation rows.
type ConversationStore interface {
	// CreateConversation inserts the canonical-ordered pair row.
	// Returns ErrConversationExists when the pair already has one.
	CreateConversation(ctx context.Context, userA, userB int64) (*model.Conversation, error)
	ConversationByID(ctx context.Context, id uuid.UUID) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]model.ConversationSummary, error)
	IsParticipant(ctx context.Context, conversationID uuid.UUID, userID int64) (bool, error)
}

// MessageStore manages message rows.
type MessageStore interface {
	// InsertMessage persists a message and bumps the conversation's
	// last-activity time. The participant check is enforced here as well as
	// upstream: a sender outside the pair gets ErrNotParticipant regardless
	// of how the call was reached.
	InsertMessage(ctx context.Context, conversationID uuid.UUID, senderID int64, content string) (*model.Message, error)
	// PageMessages returns up to limit messages strictly older than before
	// (nil means newest page), newest first, plus whether older ones remain.
	PageMessages(ctx context.Context, conversationID uuid.UUID, before *time.Time, limit int) ([]model.Message, bool, error)
	EditMessage(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64, content string) (time.Time, error)
	DeleteMessage(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64) error
}

// MessageNotifyStore persists a message and emits its notification in one
// transaction. Only meaningful when the notification channel rides the same
// database as the store; a crash can then never leave a row without its
// notification or a notification without its row.
type MessageNotifyStore interface {
	InsertMessageAndNotify(ctx context.Context, conversationID uuid.UUID, senderID int64, content, channel string) (*model.Message, error)
}

// Store is the full storage surface the server wires at startup.
type Store interface {
	UserStore
	ChatCodeStore
	ConversationStore
	MessageStore

	Ping(ctx context.Context) error
	Close()
}
