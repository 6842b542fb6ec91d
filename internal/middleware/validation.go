package middleware

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 10000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateUsername validates an account username.
func ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 32 {
		return errors.New("username must be between 3 and 32 characters")
	}
	if !utf8.ValidString(username) {
		return errors.New("username must be valid UTF-8")
	}
	if strings.ContainsAny(username, " \t\n") {
		return errors.New("username cannot contain whitespace")
	}
	return nil
}

// ValidateEmail validates an email address.
func ValidateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email address")
	}
	return nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return errors.New("password exceeds maximum length")
	}
	return nil
}
