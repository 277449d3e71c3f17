package models

import (
	"errors"
	"strings"
	"time"
)

// ChatRole identifies who authored an assistant chat turn.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

var ErrInvalidChatRole = errors.New("invalid chat role")

// Image is an inline image attached to a chat turn.
type Image struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// ChatTurn is one entry of a conversation with the generative assistant.
type ChatTurn struct {
	ID        string    `json:"id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Image     *Image    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the turn has a known role and some content.
func (t *ChatTurn) Validate() error {
	validation := &ValidationErrors{}
	switch t.Role {
	case ChatRoleUser, ChatRoleAssistant:
	default:
		validation.Add("role", ErrInvalidChatRole)
	}
	if strings.TrimSpace(t.Content) == "" && t.Image == nil {
		validation.Addf("content", "content or image is required")
	}
	return validation.Err()
}
