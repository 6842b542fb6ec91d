// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps store and service errors to HTTP responses.
// Unrecognized errors are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrNotAuthor):
		writeError(w, http.StatusForbidden, "you can only modify messages you sent")
	case errors.Is(err, store.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "you are not a participant in this conversation")
	case errors.Is(err, store.ErrDuplicateUser):
		writeError(w, http.StatusConflict, "username or email already taken")
	case errors.Is(err, store.ErrConversationExists):
		writeError(w, http.StatusConflict, "conversation already exists")
	case errors.Is(err, store.ErrCodeLimit):
		writeError(w, http.StatusBadRequest, "chat code limit reached")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, "wrong password")
	case errors.Is(err, service.ErrSelfRedeem):
		writeError(w, http.StatusBadRequest, "you cannot start a conversation with yourself")
	default:
		log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
