// Package relay implements the real-time message relay: the participant
// gate, the per-connection session event loop and the bridge between the
// notification channel and the client's websocket.
package relay

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/pairchat/pairchat/internal/service"
)

// ErrForbidden indicates the authenticated user may not join the
// conversation. A conversation that does not exist is reported identically so
// callers cannot probe for existence.
var ErrForbidden = errors.New("relay: not authorized for this conversation")

// Gate verifies conversation membership before a session may allocate any
// resource. Token verification itself happens upstream in the HTTP
// middleware; the gate covers the membership half of admission.
type Gate struct {
	conversations *service.ConversationService
}

// NewGate creates a participant gate.
func NewGate(conversations *service.ConversationService) *Gate {
	return &Gate{conversations: conversations}
}

// Authorize checks that userID participates in the conversation. It has no
// side effects beyond the membership read.
func (g *Gate) Authorize(ctx context.Context, conversationID uuid.UUID, userID int64) error {
	ok, err := g.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
