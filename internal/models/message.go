package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PendingIDPrefix marks locally synthesized messages that the provider has
// not confirmed yet. Provider ids never start with it.
const PendingIDPrefix = "temp-"

// Message is one entry of a conversation thread.
type Message struct {
	// ID is the provider-assigned id, or a PendingIDPrefix id for an
	// unconfirmed send.
	ID string `json:"id"`

	// SenderID is the provider id of the author.
	SenderID string `json:"sender_id"`

	// Content is the message text.
	Content string `json:"content"`

	// Timestamp is when the message was created.
	Timestamp time.Time `json:"timestamp"`

	// IsFromPage is true when the operator's page authored the message.
	IsFromPage bool `json:"is_from_page"`
}

// Pending reports whether the message is a local placeholder awaiting
// confirmation.
func (m Message) Pending() bool {
	return IsPendingID(m.ID)
}

// IsPendingID reports whether id uses the reserved pending prefix.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingIDPrefix)
}

// PendingID builds a placeholder id from the send time.
func PendingID(at time.Time) string {
	return fmt.Sprintf("%s%d", PendingIDPrefix, at.UnixMilli())
}

// SortMessages orders messages oldest first. Ties keep their relative order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// NewestTimestamp returns the latest timestamp in msgs, or the zero time when
// msgs is empty.
func NewestTimestamp(msgs []Message) time.Time {
	var newest time.Time
	for _, msg := range msgs {
		if msg.Timestamp.After(newest) {
			newest = msg.Timestamp
		}
	}
	return newest
}

// RemoveMessage returns msgs without the message with the given id.
func RemoveMessage(msgs []Message, id string) []Message {
	out := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == id {
			continue
		}
		out = append(out, msg)
	}
	return out
}
