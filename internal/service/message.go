package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
	"github.com/pairchat/pairchat/pkg/metrics"
)

// Page size bounds for historical reads.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Notification is the payload fanned out on a conversation's channel after a
// persist. It is transient: one fan-out event, never stored.
type Notification struct {
	SenderID int64     `json:"user_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}

// DecodeNotification parses a raw channel payload.
func DecodeNotification(data []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	return &n, nil
}

// MessageService handles message persistence and fan-out.
type MessageService struct {
	messages store.MessageStore
	broker   pubsub.Broker
	atomic   store.MessageNotifyStore
	logger   *logger.Logger
}

// NewMessageService creates a new message service. Pass the store again as
// atomic when the broker rides the same database; the notification then
// commits with the message row and the two can never diverge. With any other
// broker atomic is nil and Send publishes after the persist.
func NewMessageService(messages store.MessageStore, broker pubsub.Broker, atomic store.MessageNotifyStore, log *logger.Logger) *MessageService {
	return &MessageService{messages: messages, broker: broker, atomic: atomic, logger: log}
}

// Send persists a message and emits exactly one notification on the
// conversation's channel. A failed persist emits nothing.
func (s *MessageService) Send(ctx context.Context, conversationID uuid.UUID, senderID int64, content string) (*model.Message, error) {
	if s.atomic != nil {
		msg, err := s.atomic.InsertMessageAndNotify(ctx, conversationID, senderID, content, pubsub.ChannelFor(conversationID))
		if err != nil {
			return nil, err
		}
		metrics.MessagesPersisted.Inc()
		return msg, nil
	}

	msg, err := s.messages.InsertMessage(ctx, conversationID, senderID, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.Inc()

	payload, err := json.Marshal(Notification{
		SenderID: msg.SenderID,
		Content:  msg.Content,
		SentAt:   msg.SentAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification: %w", err)
	}

	if err := s.broker.Publish(ctx, pubsub.ChannelFor(conversationID), payload); err != nil {
		// The row is durable; subscribers that miss this notification recover
		// it through the historical read path.
		s.logger.Error("failed to publish notification",
			zap.String("conversation_id", conversationID.String()), zap.Error(err))
		return nil, err
	}
	return msg, nil
}

// Page returns one page of history, newest first. A nil cursor means the most
// recent page; the returned cursor is the oldest entry's sent time.
func (s *MessageService) Page(ctx context.Context, conversationID uuid.UUID, cursor *time.Time, limit int) (*model.ListMessagesResponse, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	messages, hasMore, err := s.messages.PageMessages(ctx, conversationID, cursor, limit)
	if err != nil {
		return nil, err
	}

	resp := &model.ListMessagesResponse{Messages: messages, HasMore: hasMore}
	if len(messages) > 0 {
		resp.NextCursor = messages[len(messages)-1].SentAt.Format(time.RFC3339Nano)
	}
	return resp, nil
}

// Edit replaces a message's content. Author only.
func (s *MessageService) Edit(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64, content string) (time.Time, error) {
	return s.messages.EditMessage(ctx, conversationID, messageID, editorID, content)
}

// Delete removes a message. Author only.
func (s *MessageService) Delete(ctx context.Context, conversationID, messageID uuid.UUID, editorID int64) error {
	return s.messages.DeleteMessage(ctx, conversationID, messageID, editorID)
}
