package inbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

// ViewStore persists view marks. *db.ViewMarkRepository and
// *cache.ViewMarkStore implement it.
type ViewStore interface {
	SetViewed(ctx context.Context, conversationID string, at time.Time) error
	LastViewed(ctx context.Context, conversationID string) (time.Time, bool, error)
	All(ctx context.Context) (map[string]time.Time, error)
}

// MemoryViewStore keeps marks in process memory.
type MemoryViewStore struct {
	mu    sync.RWMutex
	marks map[string]time.Time
}

// NewMemoryViewStore creates an empty store.
func NewMemoryViewStore() *MemoryViewStore {
	return &MemoryViewStore{marks: make(map[string]time.Time)}
}

// SetViewed records at as the last view of conversationID.
func (m *MemoryViewStore) SetViewed(_ context.Context, conversationID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[conversationID] = at
	return nil
}

// LastViewed returns the mark for conversationID, if any.
func (m *MemoryViewStore) LastViewed(_ context.Context, conversationID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	at, ok := m.marks[conversationID]
	return at, ok, nil
}

// All returns a copy of every mark.
func (m *MemoryViewStore) All(_ context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]time.Time, len(m.marks))
	for k, v := range m.marks {
		out[k] = v
	}
	return out, nil
}

// ViewTracker decides which conversations carry unseen activity. Marks are
// cached in memory and written through to the store.
type ViewTracker struct {
	store  ViewStore
	period time.Duration
	clock  func() time.Time
	logger zerolog.Logger

	mu    sync.RWMutex
	marks map[string]time.Time
}

// NewViewTracker creates a tracker. period is the conversation polling
// period: activity older than one period before the last refresh is never
// flagged.
func NewViewTracker(store ViewStore, period time.Duration) *ViewTracker {
	return &ViewTracker{
		store:  store,
		period: period,
		clock:  time.Now,
		logger: logging.Component("viewstate"),
		marks:  make(map[string]time.Time),
	}
}

// Load merges the store's marks into the cache, keeping the newer mark per
// conversation. Sessions call it on every conversation refresh so marks
// written by other sessions sharing the store are picked up.
func (v *ViewTracker) Load(ctx context.Context) error {
	marks, err := v.store.All(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, at := range marks {
		if cur, ok := v.marks[id]; !ok || at.After(cur) {
			v.marks[id] = at
		}
	}
	return nil
}

// MarkViewed records that the operator opened conversationID now. Store
// failures are logged; the in-memory mark always applies.
func (v *ViewTracker) MarkViewed(ctx context.Context, conversationID string) {
	if conversationID == "" {
		return
	}
	now := v.clock()
	v.mu.Lock()
	v.marks[conversationID] = now
	v.mu.Unlock()

	if err := v.store.SetViewed(ctx, conversationID, now); err != nil {
		v.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to persist view mark")
	}
}

// LastViewed returns when conversationID was last opened.
func (v *ViewTracker) LastViewed(conversationID string) (time.Time, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	at, ok := v.marks[conversationID]
	return at, ok
}

// HasUnseen is true iff the conversation's latest activity is newer than
// the operator's last view (never viewed counts as the epoch) and falls
// within one polling period before lastRefreshed.
func (v *ViewTracker) HasUnseen(conv models.Conversation, lastRefreshed time.Time) bool {
	lastViewed, _ := v.LastViewed(conv.ID)
	return conv.Timestamp.After(lastViewed) && conv.Timestamp.After(lastRefreshed.Add(-v.period))
}
