package service

import (
	"context"
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
	"github.com/pairchat/pairchat/pkg/metrics"
)

// ErrSelfRedeem indicates a user tried to redeem their own code.
var ErrSelfRedeem = errors.New("service: cannot start a conversation with yourself")

// Chat code values are five-digit numbers, easy to read out loud.
const (
	chatCodeMin = 10000
	chatCodeMax = 65535
)

// codeRetries bounds how many collisions Issue tolerates before giving up.
const codeRetries = 10

// ChatCodeService issues and redeems the codes that open conversations.
type ChatCodeService struct {
	codes  store.ChatCodeStore
	convs  store.ConversationStore
	logger *logger.Logger
}

// NewChatCodeService creates a new chat code service.
func NewChatCodeService(codes store.ChatCodeStore, convs store.ConversationStore, log *logger.Logger) *ChatCodeService {
	return &ChatCodeService{codes: codes, convs: convs, logger: log}
}

// Issue generates a fresh random code for userID, retrying on value collisions.
func (s *ChatCodeService) Issue(ctx context.Context, userID int64) (int, error) {
	var err error
	for i := 0; i < codeRetries; i++ {
		code := chatCodeMin + rand.Intn(chatCodeMax-chatCodeMin)
		err = s.codes.CreateChatCode(ctx, code, userID)
		if errors.Is(err, store.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return 0, err
		}
		metrics.ChatCodesIssued.Inc()
		s.logger.Info("chat code issued", zap.Int64("user_id", userID), zap.Int("code", code))
		return code, nil
	}
	return 0, err
}

// List returns the caller's unredeemed codes.
func (s *ChatCodeService) List(ctx context.Context, userID int64) ([]model.ChatCode, error) {
	return s.codes.ListChatCodes(ctx, userID)
}

// Revoke deletes one of the caller's codes.
func (s *ChatCodeService) Revoke(ctx context.Context, code int, userID int64) error {
	return s.codes.DeleteChatCode(ctx, code, userID)
}

// Redeem exchanges a peer's code for a conversation. The code is consumed on
// success; an already-existing pair keeps the code and reports the conflict.
func (s *ChatCodeService) Redeem(ctx context.Context, code int, userID int64) (*model.Conversation, error) {
	owner, err := s.codes.ChatCodeOwner(ctx, code)
	if err != nil {
		return nil, err
	}
	if owner == userID {
		return nil, ErrSelfRedeem
	}

	conv, err := s.convs.CreateConversation(ctx, owner, userID)
	if err != nil {
		return nil, err
	}

	if err := s.codes.DeleteChatCode(ctx, code, owner); err != nil {
		// The conversation exists either way; losing the cleanup only leaves
		// a stale code behind.
		s.logger.Warn("failed to consume chat code", zap.Int("code", code), zap.Error(err))
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID.String()),
		zap.Int64("user_id_1", conv.UserID1),
		zap.Int64("user_id_2", conv.UserID2),
	)
	return conv, nil
}
