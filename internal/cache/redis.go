// Package cache provides the redis-backed view mark store, letting several
// terminals working the same page share which conversations were opened.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrInvalidViewMark is returned for marks without a conversation ID.
var ErrInvalidViewMark = errors.New("cache: invalid view mark")

// hashClient is the subset of *redis.Client the store uses.
type hashClient interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Connect parses a redis URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

// ViewMarkStore keeps one hash per page: conversation ID -> unix millis.
type ViewMarkStore struct {
	client hashClient
	key    string
	ttl    time.Duration
}

// NewViewMarkStore creates a store for pageID. A positive ttl expires the
// whole hash after the last write.
func NewViewMarkStore(client hashClient, pageID string, ttl time.Duration) *ViewMarkStore {
	return &ViewMarkStore{
		client: client,
		key:    "pagechat:viewmarks:" + pageID,
		ttl:    ttl,
	}
}

// Key returns the redis key holding the page's marks.
func (s *ViewMarkStore) Key() string {
	return s.key
}

// SetViewed records the mark for a conversation.
func (s *ViewMarkStore) SetViewed(ctx context.Context, conversationID string, at time.Time) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrInvalidViewMark
	}
	if err := s.client.HSet(ctx, s.key, conversationID, strconv.FormatInt(at.UnixMilli(), 10)).Err(); err != nil {
		return fmt.Errorf("redis: store view mark: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.key, s.ttl).Err(); err != nil {
			return fmt.Errorf("redis: expire view marks: %w", err)
		}
	}
	return nil
}

// LastViewed returns the mark for a conversation; ok is false on a miss.
func (s *ViewMarkStore) LastViewed(ctx context.Context, conversationID string) (time.Time, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, conversationID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: read view mark: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: invalid view mark %q: %w", raw, err)
	}
	return time.UnixMilli(ms), true, nil
}

// All returns every mark for the page. Malformed entries are skipped.
func (s *ViewMarkStore) All(ctx context.Context) (map[string]time.Time, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list view marks: %w", err)
	}
	marks := make(map[string]time.Time, len(raw))
	for id, value := range raw {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		marks[id] = time.UnixMilli(ms)
	}
	return marks, nil
}
