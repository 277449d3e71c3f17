// Package graph is a small client for the Facebook Graph API endpoints the
// inbox needs: listing page conversations, listing messages and sending.
package graph

import (
	"fmt"
	"net/http"
	"time"
)

// Participant is a conversation participant.
type Participant struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// MessageNode is a message as returned by the messages edge.
type MessageNode struct {
	ID          string      `json:"id"`
	Message     string      `json:"message"`
	From        Participant `json:"from"`
	CreatedTime string      `json:"created_time"`
}

// ConversationNode is a conversation as returned by the conversations edge.
type ConversationNode struct {
	ID           string `json:"id"`
	Participants struct {
		Data []Participant `json:"data"`
	} `json:"participants"`
	Messages *struct {
		Data []MessageNode `json:"data"`
	} `json:"messages,omitempty"`
}

// LatestMessage returns the first embedded message, which the provider
// orders newest first.
func (n ConversationNode) LatestMessage() (MessageNode, bool) {
	if n.Messages == nil || len(n.Messages.Data) == 0 {
		return MessageNode{}, false
	}
	return n.Messages.Data[0], true
}

// Counterpart returns the first participant that is not the page.
func (n ConversationNode) Counterpart(pageID string) (Participant, bool) {
	for _, p := range n.Participants.Data {
		if p.ID != pageID {
			return p, true
		}
	}
	return Participant{}, false
}

// SendResult is the send API response.
type SendResult struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

type sendRequest struct {
	MessagingType string          `json:"messaging_type"`
	Recipient     sendRecipient   `json:"recipient"`
	Message       sendMessageBody `json:"message"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

type sendMessageBody struct {
	Text string `json:"text"`
}

// APIError is a non-2xx Graph response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Type != "" {
		return fmt.Sprintf("graph api error (status %d, %s %d): %s", e.StatusCode, e.Type, e.Code, msg)
	}
	return fmt.Sprintf("graph api error (status %d): %s", e.StatusCode, msg)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

var timeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseTime parses a Graph created_time value.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid graph time %q", value)
}
