package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ChatSession is a user's conversation with the marketplace assistant. A user
// has at most one active session.
type ChatSession struct {
	ID           int64         `json:"id"`
	UserID       int64         `json:"userId"`
	Active       bool          `json:"isActive"`
	LastActivity time.Time     `json:"lastActivity"`
	CreatedAt    time.Time     `json:"createdAt"`
	Messages     []ChatMessage `json:"messages"`
}

// ChatMessage is one turn of a chat session.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// Chat roles.
const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// MaxChatMessageLength bounds a single user message, in characters.
const MaxChatMessageLength = 2000

var (
	ErrChatMessageEmpty   = errors.New("message is required")
	ErrChatMessageTooLong = errors.New("message must be at most 2000 characters")
)

// ValidateChatMessage checks a message typed by the user.
func ValidateChatMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrChatMessageEmpty
	}
	if utf8.RuneCountInString(message) > MaxChatMessageLength {
		return ErrChatMessageTooLong
	}
	return nil
}
