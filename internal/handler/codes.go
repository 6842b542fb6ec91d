package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pairchat/pairchat/internal/middleware"
	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/pkg/logger"
)

// ChatCodeHandler handles chat code endpoints.
type ChatCodeHandler struct {
	service *service.ChatCodeService
	logger  *logger.Logger
}

// NewChatCodeHandler creates a new chat code handler.
func NewChatCodeHandler(svc *service.ChatCodeService, log *logger.Logger) *ChatCodeHandler {
	return &ChatCodeHandler{service: svc, logger: log}
}

// Create handles POST /api/v1/chats/codes
func (h *ChatCodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.Issue(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateChatCodeResponse{Code: code})
}

// List handles GET /api/v1/chats/codes
func (h *ChatCodeHandler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.service.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListChatCodesResponse{Codes: codes})
}

// Delete handles DELETE /api/v1/chats/codes/{code}
func (h *ChatCodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat code")
		return
	}

	if err := h.service.Revoke(r.Context(), code, middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redeem handles POST /api/v1/chats/codes/redeem
func (h *ChatCodeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req model.RedeemChatCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv, err := h.service.Redeem(r.Context(), req.Code, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.RedeemChatCodeResponse{Conversation: *conv})
}
