// Package events provides the inbox change feed: in-process publish and
// subscribe, with optional persistence and a NATS bridge.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

var (
	ErrInvalidSubscriptionID = errors.New("subscription ID is required")
	ErrNilHandler            = errors.New("handler cannot be nil")
	ErrSubscriptionExists    = errors.New("subscription already exists")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
)

// EventHandler receives events on the publishing goroutine and must not block.
type EventHandler func(event *models.Event)

// Repository persists published events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// Filter selects events by type and conversation. The zero Filter matches
// every event.
type Filter struct {
	EventTypes     []models.EventType
	ConversationID string
}

// Matches reports whether event passes the filter.
func (f Filter) Matches(event *models.Event) bool {
	if event == nil {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type) {
		return false
	}
	return f.ConversationID == "" || event.ConversationID == f.ConversationID
}

// Publisher is the change feed the inbox session writes to.
type Publisher interface {
	Publish(ctx context.Context, event *models.Event)
	Subscribe(id string, filter Filter, handler EventHandler) error
	Unsubscribe(id string) error
	SubscriberCount() int
}

type subscriber struct {
	id      string
	filter  Filter
	handler EventHandler
}

// InMemoryPublisher fans events out to subscribers in subscription order and
// optionally appends them to an event log first.
type InMemoryPublisher struct {
	mu     sync.RWMutex
	subs   []subscriber
	repo   Repository
	logger zerolog.Logger
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithRepository appends every published event to repo. Write failures are
// logged and do not stop delivery.
func WithRepository(repo Repository) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.repo = repo
	}
}

// NewInMemoryPublisher creates an empty feed.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{logger: logging.Component("events")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish persists event, then hands it to each matching subscriber.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *models.Event) {
	if event == nil {
		return
	}
	if p.repo != nil {
		if err := p.repo.Create(ctx, event); err != nil {
			p.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to record event")
		}
	}

	p.mu.RLock()
	targets := make([]EventHandler, 0, len(p.subs))
	for _, sub := range p.subs {
		if sub.filter.Matches(event) {
			targets = append(targets, sub.handler)
		}
	}
	p.mu.RUnlock()

	// Handlers may subscribe or unsubscribe, so they run without the lock.
	for _, handler := range targets {
		handler(event)
	}
}

// Subscribe registers handler under a unique id.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler EventHandler) error {
	switch {
	case id == "":
		return ErrInvalidSubscriptionID
	case handler == nil:
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOf(id) >= 0 {
		return ErrSubscriptionExists
	}
	p.subs = append(p.subs, subscriber{id: id, filter: filter, handler: handler})
	return nil
}

// Unsubscribe removes the subscription registered under id.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.indexOf(id)
	if i < 0 {
		return ErrSubscriptionNotFound
	}
	p.subs = slices.Delete(p.subs, i, i+1)
	return nil
}

func (p *InMemoryPublisher) indexOf(id string) int {
	return slices.IndexFunc(p.subs, func(s subscriber) bool { return s.id == id })
}

// SubscriberCount returns the number of active subscriptions.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Close drops every subscription.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = nil
}

// NewEvent builds an event with a fresh ID and timestamp. A payload that
// cannot be marshaled is dropped.
func NewEvent(eventType models.EventType, conversationID string, payload any) *models.Event {
	event := &models.Event{
		ID:             uuid.NewString(),
		Timestamp:      time.Now().UTC(),
		Type:           eventType,
		ConversationID: conversationID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}
