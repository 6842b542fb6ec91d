package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pairchat/pairchat/internal/model"
	"github.com/pairchat/pairchat/internal/store"
	"github.com/pairchat/pairchat/pkg/logger"
)

// ErrWrongPassword indicates the supplied current password did not match.
var ErrWrongPassword = errors.New("service: wrong password")

// UserService handles profile operations.
type UserService struct {
	users  store.UserStore
	logger *logger.Logger
}

// NewUserService creates a new user service.
func NewUserService(users store.UserStore, log *logger.Logger) *UserService {
	return &UserService{users: users, logger: log}
}

// Me returns the caller's own account.
func (s *UserService) Me(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.UserByID(ctx, userID)
}

// Profile returns another user's public profile.
func (s *UserService) Profile(ctx context.Context, userID int64) (*model.PublicProfile, error) {
	u, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.PublicProfile{ID: u.ID, Username: u.Username}, nil
}

// Update replaces profile fields, keeping current values for omitted ones.
func (s *UserService) Update(ctx context.Context, userID int64, req *model.UpdateUserRequest) (*model.User, error) {
	current, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	username := current.Username
	if req.Username != "" {
		username = req.Username
	}
	email := current.Email
	if req.Email != "" {
		email = req.Email
	}

	return s.users.UpdateUser(ctx, userID, username, email)
}

// UpdatePassword verifies the current password and replaces the hash.
func (s *UserService) UpdatePassword(ctx context.Context, userID int64, req *model.UpdatePasswordRequest) error {
	current, err := s.users.UserByID(ctx, userID)
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(current.PasswordHash), []byte(req.OldPassword)) != nil {
		return ErrWrongPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.UpdatePasswordHash(ctx, userID, string(hash))
}

// Delete removes the account; codes, conversations and messages cascade.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.Int64("user_id", userID))
	return nil
}
