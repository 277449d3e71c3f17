// Package inbox is the polling and synchronization engine behind the page
// inbox: it keeps the conversation list and the open thread current against
// the Graph API, and reconciles optimistic sends with provider records.
package inbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

// User-visible error strings.
const (
	ConversationsErrorMessage = "Failed to load conversations. Please try again later."
	MessagesErrorMessage      = "Failed to load messages. Please try again later."
	SendErrorPrefix           = "Failed to send message: "
	UnknownSendError          = "Unknown error"
)

// Provider is the Messenger backend. *graph.Client implements it.
type Provider interface {
	PageID() string
	ListConversations(ctx context.Context) ([]graph.ConversationNode, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]graph.MessageNode, error)
	SendMessage(ctx context.Context, recipientID, text string) (*graph.SendResult, error)
}

// Config contains the engine cadence.
type Config struct {
	// ConversationInterval is the coarse period of the conversation loop.
	ConversationInterval time.Duration

	// MessageInterval is the fine period of the active-conversation loop.
	MessageInterval time.Duration

	// StalenessPageSize is how many messages a staleness check fetches.
	StalenessPageSize int

	// SendSettleDelay is how long a successful send waits before refetching.
	SendSettleDelay time.Duration
}

// DefaultConfig returns the default cadence.
func DefaultConfig() Config {
	return Config{
		ConversationInterval: 10 * time.Second,
		MessageInterval:      3 * time.Second,
		StalenessPageSize:    5,
		SendSettleDelay:      time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConversationInterval <= 0 {
		c.ConversationInterval = def.ConversationInterval
	}
	if c.MessageInterval <= 0 {
		c.MessageInterval = def.MessageInterval
	}
	if c.StalenessPageSize <= 0 {
		c.StalenessPageSize = def.StalenessPageSize
	}
	if c.SendSettleDelay < 0 {
		c.SendSettleDelay = def.SendSettleDelay
	}
	return c
}

// State is a point-in-time copy of the session.
type State struct {
	Conversations     []models.Conversation
	ConversationError string
	LastRefreshed     time.Time
	Refreshing        bool

	Selected     string
	Messages     []models.Message
	MessageError string
	Loading      bool

	Draft   string
	Sending bool
}

// SelectedConversation returns the selected conversation from the list.
func (s State) SelectedConversation() (models.Conversation, bool) {
	if s.Selected == "" {
		return models.Conversation{}, false
	}
	return models.FindConversation(s.Conversations, s.Selected)
}

// Option customizes a Session.
type Option func(*Session)

// WithPublisher emits change events to pub.
func WithPublisher(pub events.Publisher) Option {
	return func(s *Session) {
		s.publisher = pub
	}
}

// WithViewStore persists view marks in store.
func WithViewStore(store ViewStore) Option {
	return func(s *Session) {
		s.views.store = store
	}
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
			s.views.clock = clock
		}
	}
}

// Session owns the inbox state. All fields behind mu; fetch cycles are
// serialized through cycle.
type Session struct {
	provider  Provider
	pageID    string
	config    Config
	publisher events.Publisher
	views     *ViewTracker
	clock     func() time.Time
	logger    zerolog.Logger

	// cycle is a one-slot semaphore shared by every fetch cycle.
	cycle chan struct{}

	mu                sync.RWMutex
	conversations     []models.Conversation
	conversationError string
	lastRefreshed     time.Time
	refreshing        bool

	selected     string
	epoch        uint64
	messages     []models.Message
	messageError string
	loading      int
	newest       time.Time
	hasNewest    bool

	draft    string
	sending  bool
	inflight map[string]bool

	nextConversationSeq    uint64
	appliedConversationSeq uint64
	nextMessageSeq         uint64
	appliedMessageSeq      uint64
}

// NewSession creates a session over provider.
func NewSession(provider Provider, config Config, opts ...Option) *Session {
	config = config.withDefaults()
	s := &Session{
		provider: provider,
		pageID:   provider.PageID(),
		config:   config,
		clock:    time.Now,
		logger:   logging.Component("inbox"),
		cycle:    make(chan struct{}, 1),
		inflight: make(map[string]bool),
	}
	s.views = NewViewTracker(NewMemoryViewStore(), config.ConversationInterval)
	for _, opt := range opts {
		opt(s)
	}
	s.lastRefreshed = s.clock()
	return s
}

// Config returns the effective cadence.
func (s *Session) Config() Config {
	return s.config
}

// PageID returns the operator page.
func (s *Session) PageID() string {
	return s.pageID
}

// Views returns the view-state tracker.
func (s *Session) Views() *ViewTracker {
	return s.views
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return State{
		Conversations:     append([]models.Conversation(nil), s.conversations...),
		ConversationError: s.conversationError,
		LastRefreshed:     s.lastRefreshed,
		Refreshing:        s.refreshing,
		Selected:          s.selected,
		Messages:          append([]models.Message(nil), s.messages...),
		MessageError:      s.messageError,
		Loading:           s.loading > 0,
		Draft:             s.draft,
		Sending:           s.sending,
	}
}

// Select changes the selected conversation. Selecting "" clears the thread.
// A non-empty selection is marked viewed. Loops are managed by the Poller;
// callers without a poller fetch explicitly.
func (s *Session) Select(ctx context.Context, conversationID string) {
	s.mu.Lock()
	s.selected = conversationID
	s.epoch++
	s.messages = nil
	s.messageError = ""
	s.newest = time.Time{}
	s.hasNewest = false
	s.mu.Unlock()

	if conversationID == "" {
		s.emit(ctx, models.EventTypeMessagesCleared, "", nil)
		return
	}
	s.views.MarkViewed(ctx, conversationID)
	s.emit(ctx, models.EventTypeSelectionChanged, conversationID, nil)
}

// Selected returns the selected conversation ID.
func (s *Session) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// HasUnseen reports whether conv has activity the operator has not seen.
func (s *Session) HasUnseen(conv models.Conversation) bool {
	s.mu.RLock()
	lastRefreshed := s.lastRefreshed
	s.mu.RUnlock()
	return s.views.HasUnseen(conv, lastRefreshed)
}

// Refresh is the manual refresh: conversations, then the open thread, with
// the last-refreshed marker updated once at the end.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.acquireCycle(ctx); err != nil {
		return err
	}
	defer s.releaseCycle()

	s.mu.Lock()
	s.refreshing = true
	s.mu.Unlock()

	_, convErr := s.FetchConversations(ctx)
	s.syncViews(ctx)

	var msgErr error
	if selected := s.Selected(); selected != "" {
		_, msgErr = s.FetchMessages(ctx, selected)
	}

	s.mu.Lock()
	s.lastRefreshed = s.clock()
	s.refreshing = false
	s.mu.Unlock()

	return errors.Join(convErr, msgErr)
}

// syncViews merges marks written to the shared store by other sessions.
func (s *Session) syncViews(ctx context.Context) {
	if err := s.views.Load(ctx); err != nil && !isCancellation(err) {
		s.logger.Warn().Err(err).Msg("failed to reload view marks")
	}
}

// markRefreshed updates the last-refreshed marker.
func (s *Session) markRefreshed() {
	s.mu.Lock()
	s.lastRefreshed = s.clock()
	s.mu.Unlock()
}

func (s *Session) acquireCycle(ctx context.Context) error {
	select {
	case s.cycle <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) releaseCycle() {
	<-s.cycle
}

// isCurrentMessageResponse reports whether a message response may be
// applied. Caller holds mu.
func (s *Session) isCurrentMessageResponse(seq, epoch uint64, conversationID string) bool {
	return s.selected == conversationID && s.epoch == epoch && seq > s.appliedMessageSeq
}

func (s *Session) emit(ctx context.Context, eventType models.EventType, conversationID string, payload any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, events.NewEvent(eventType, conversationID, payload))
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
