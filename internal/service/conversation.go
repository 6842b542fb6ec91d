package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

// ConversationService handles conversation reads. Conversations are created
// only through code redemption and deleted only by account cascade, so there
// is no direct mutation surface here.
type ConversationService struct {
	convs  store.ConversationStore
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(convs store.ConversationStore, log *logger.Logger) *ConversationService {
	return &ConversationService{convs: convs, logger: log}
}

// List returns the caller's conversations, most recently active first.
func (s *ConversationService) List(ctx context.Context, userID int64) (*model.ListConversationsResponse, error) {
	convs, err := s.convs.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.ListConversationsResponse{Conversations: convs}, nil
}

// Get returns one conversation, restricted to its participants.
func (s *ConversationService) Get(ctx context.Context, conversationID uuid.UUID, userID int64) (*model.Conversation, error) {
	conv, err := s.convs.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		// Report the same way as a missing conversation.
		return nil, store.ErrNotFound
	}
	return conv, nil
}

// IsParticipant reports whether userID belongs to the conversation.
func (s *ConversationService) IsParticipant(ctx context.Context, conversationID uuid.UUID, userID int64) (bool, error) {
	return s.convs.IsParticipant(ctx, conversationID, userID)
}
