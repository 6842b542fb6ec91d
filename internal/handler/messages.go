package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pairchat/pairchat/internal/middleware"
	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/pkg/logger"
)

// MessageHandler handles the historical read and message mutation endpoints.
type MessageHandler struct {
	messageService      *service.MessageService
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	msgSvc *service.MessageService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		messageService:      msgSvc,
		conversationService: convSvc,
		logger:              log,
	}
}

// requireParticipant parses the conversation id and verifies membership.
// It writes the response on failure and reports success via ok.
func (h *MessageHandler) requireParticipant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return uuid.Nil, false
	}

	participant, err := h.conversationService.IsParticipant(r.Context(), conversationID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return uuid.Nil, false
	}
	if !participant {
		writeError(w, http.StatusForbidden, "you are not a participant in this conversation")
		return uuid.Nil, false
	}
	return conversationID, true
}

// List handles GET /api/v1/chats/{id}/messages
// Query params: cursor (RFC3339 sent time, exclusive) and limit.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}

	var cursor *time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor format, use RFC3339 timestamp")
			return
		}
		cursor = &ts
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := h.messageService.Page(r.Context(), conversationID, cursor, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Edit handles PATCH /api/v1/chats/{id}/messages/{messageID}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	var req model.EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	editedAt, err := h.messageService.Edit(r.Context(), conversationID, messageID, middleware.GetUserID(r.Context()), req.Content)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.EditMessageResponse{EditedAt: editedAt})
}

// Delete handles DELETE /api/v1/chats/{id}/messages/{messageID}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.requireParticipant(w, r)
	if !ok {
		return
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "messageID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	if err := h.messageService.Delete(r.Context(), conversationID, messageID, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
