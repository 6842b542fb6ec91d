package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/middleware"
	"github.com/pairchat/pairchat/internal/pubsub"
	"github.com/pairchat/pairchat/internal/relay"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/pkg/logger"
)

// WSHandler handles the websocket streaming endpoint.
type WSHandler struct {
	gate     *relay.Gate
	messages *service.MessageService
	broker   pubsub.Broker
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(gate *relay.Gate, messages *service.MessageService, broker pubsub.Broker, log *logger.Logger) *WSHandler {
	return &WSHandler{
		gate:     gate,
		messages: messages,
		broker:   broker,
		logger:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Token auth covers admission; the API is served cross-origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /api/v1/chats/ws?chat_id=<uuid>
// The participant gate runs before the upgrade; no session resource exists
// until it has passed.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	raw := r.URL.Query().Get("chat_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "chat id not provided")
		return
	}
	conversationID, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	if err := h.gate.Authorize(ctx, conversationID, userID); err != nil {
		if errors.Is(err, relay.ErrForbidden) {
			writeError(w, http.StatusUnauthorized, "not authorized for this conversation")
			return
		}
		writeServiceError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := relay.NewSession(conn, conversationID, userID, h.messages, h.broker, h.logger)
	if err := session.Run(ctx); err != nil {
		h.logger.Warn("session ended with error",
			zap.String("conversation_id", conversationID.String()),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
