// Package service provides business logic for the chat platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

// ErrInvalidCredentials indicates a failed login attempt. Unknown account and
// wrong password are reported identically.
var ErrInvalidCredentials = errors.New("service: invalid credentials")

// AuthService handles registration, login and token issuance.
type AuthService struct {
	users      store.UserStore
	secret     []byte
	expiration time.Duration
	logger     *logger.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users store.UserStore, secret string, expiration time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{
		users:      users,
		secret:     []byte(secret),
		expiration: expiration,
		logger:     log,
	}
}

// Register creates an account and returns a fresh session token.
func (s *AuthService) Register(ctx context.Context, req *model.RegisterRequest) (*model.AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, req.Username, req.Email, string(hash))
	if err != nil {
		return nil, err
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return &model.AuthResponse{UserID: user.ID, Username: user.Username, Token: token}, nil
}

// Login verifies credentials and returns a fresh session token.
func (s *AuthService) Login(ctx context.Context, req *model.LoginRequest) (*model.AuthResponse, error) {
	var (
		user *model.User
		err  error
	)
	if req.IsEmail {
		user, err = s.users.UserByEmail(ctx, req.Person)
	} else {
		user, err = s.users.UserByUsername(ctx, req.Person)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return &model.AuthResponse{UserID: user.ID, Username: user.Username, Token: token}, nil
}

// IssueToken signs a session token for userID.
func (s *AuthService) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.expiration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
