package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pairchat/pairchat/internal/middleware"
	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/service"
	"github.com/pairchat/pairchat/pkg/logger"
)

// AuthHandler handles registration and login endpoints.
type AuthHandler struct {
	service       *service.AuthService
	tokenLifetime time.Duration
	logger        *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(svc *service.AuthService, tokenLifetime time.Duration, log *logger.Logger) *AuthHandler {
	return &AuthHandler{service: svc, tokenLifetime: tokenLifetime, logger: log}
}

// setSessionCookie mirrors the token into a cookie so browser websocket
// clients can authenticate without an Authorization header.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Register(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Person == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "person and password are required")
		return
	}

	resp, err := h.service.Login(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
