package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes inbox change notifications.
type EventType string

const (
	// Conversation list events
	EventTypeConversationsRefreshed EventType = "conversations.refreshed"

	// Thread events
	EventTypeMessagesRefreshed EventType = "messages.refreshed"
	EventTypeMessagesCleared   EventType = "messages.cleared"
	EventTypeSelectionChanged  EventType = "selection.changed"

	// Send events
	EventTypeMessagePending EventType = "message.pending"
	EventTypeMessageSent    EventType = "message.sent"
	EventTypeMessageFailed  EventType = "message.failed"

	// Assistant events
	EventTypeAssistantReplied EventType = "assistant.replied"

	// System events
	EventTypeSyncError EventType = "sync.error"
)

// Event is a change notification emitted by the inbox session.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// ConversationID is the related conversation, if any.
	ConversationID string `json:"conversation_id,omitempty"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RefreshedPayload is the payload for conversations.refreshed and
// messages.refreshed events.
type RefreshedPayload struct {
	Count    int    `json:"count"`
	Sequence uint64 `json:"sequence"`
}

// SendPayload is the payload for message.pending, message.sent and
// message.failed events.
type SendPayload struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	Error       string `json:"error,omitempty"`
}

// ErrorPayload is the payload for sync.error events.
type ErrorPayload struct {
	Error   string `json:"error"`
	Context string `json:"context,omitempty"`
}
