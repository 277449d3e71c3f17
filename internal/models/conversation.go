// Package models defines the data types shared across pagechat.
package models

import (
	"errors"
	"sort"
	"time"
)

const (
	// UnknownCounterpart is the display name used when a conversation has no
	// participant other than the page.
	UnknownCounterpart = "Unknown"

	// NoMessagesPreview is the preview text for a conversation without messages.
	NoMessagesPreview = "No messages"
)

// Conversation errors.
var (
	ErrInvalidConversationID = errors.New("conversation id is required")
	ErrRecipientUnresolved   = errors.New("recipient id is not resolved")
)

// Conversation is the display record for one Messenger thread.
type Conversation struct {
	// ID is the opaque conversation identifier from the provider.
	ID string `json:"id"`

	// Name is the counterpart's display name.
	Name string `json:"name"`

	// LastMessage is the preview text of the most recent message.
	LastMessage string `json:"last_message"`

	// Timestamp is when the most recent message was created. Conversations
	// without messages carry the time they were fetched.
	Timestamp time.Time `json:"timestamp"`

	// RecipientID is the counterpart's page-scoped id, required for sending.
	RecipientID string `json:"recipient_id"`
}

// Validate checks that the conversation can be displayed and addressed.
func (c *Conversation) Validate() error {
	validation := &ValidationErrors{}
	if c.ID == "" {
		validation.Add("id", ErrInvalidConversationID)
	}
	if c.RecipientID == "" {
		validation.Add("recipient_id", ErrRecipientUnresolved)
	}
	return validation.Err()
}

// CanSend reports whether the conversation has a resolved recipient.
func (c *Conversation) CanSend() bool {
	return c != nil && c.RecipientID != ""
}

// SortConversations orders conversations newest first. Ties keep their
// relative order.
func SortConversations(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].Timestamp.After(convs[j].Timestamp)
	})
}

// FindConversation returns the conversation with the given id.
func FindConversation(convs []Conversation, id string) (Conversation, bool) {
	for _, conv := range convs {
		if conv.ID == id {
			return conv, true
		}
	}
	return Conversation{}, false
}
