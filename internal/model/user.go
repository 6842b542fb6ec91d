// Package model defines data structures for the chat platform.
package model

import (
	"time"
)

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterRequest is the request to create a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the request to authenticate.
// Person is either a username or an email, disambiguated by IsEmail.
type LoginRequest struct {
	Person   string `json:"person"`
	Password string `json:"password"`
	IsEmail  bool   `json:"is_email"`
}

// AuthResponse is returned after successful registration or login.
type AuthResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// UpdateUserRequest is the request to update profile fields.
type UpdateUserRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UpdatePasswordRequest is the request to change the account password.
type UpdatePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// PublicProfile is the subset of User visible to other users.
type PublicProfile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}
