package inboxtui

import (
	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/models"
)

// SubscriptionID is the publisher subscription the TUI registers.
const SubscriptionID = "inboxtui"

const eventBuffer = 64

// Subscribe forwards session events into a buffered channel. Publishing
// never blocks on the UI: when the buffer is full the event is dropped,
// since each one only prompts a fresh snapshot.
func Subscribe(pub *events.InMemoryPublisher) (<-chan *models.Event, func(), error) {
	ch := make(chan *models.Event, eventBuffer)
	err := pub.Subscribe(SubscriptionID, events.Filter{}, func(event *models.Event) {
		select {
		case ch <- event:
		default:
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { _ = pub.Unsubscribe(SubscriptionID) }, nil
}
