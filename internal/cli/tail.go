package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/tOgg1/pagechat/internal/db"
	"github.com/tOgg1/pagechat/internal/models"
)

const (
	defaultTailInterval = 500 * time.Millisecond
	defaultTailBatch    = 100
)

// tailOptions selects what `pagechat events --watch` follows.
type tailOptions struct {
	Interval       time.Duration
	Types          []models.EventType
	ConversationID string
	// Since replays events from this time. Nil follows only events logged
	// after the tail starts.
	Since     *time.Time
	BatchSize int
}

// eventTail follows the event log written by other pagechat processes and
// writes each new entry as one JSON line.
type eventTail struct {
	repo *db.EventRepository
	enc  *json.Encoder
	opts tailOptions

	// cursor is the last event read; since applies only until the first read.
	cursor string
	since  *time.Time
}

func newEventTail(repo *db.EventRepository, out io.Writer, opts tailOptions) *eventTail {
	if opts.Interval <= 0 {
		opts.Interval = defaultTailInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultTailBatch
	}
	return &eventTail{repo: repo, enc: json.NewEncoder(out), opts: opts}
}

// Run follows the log until ctx is cancelled, then returns nil.
func (t *eventTail) Run(ctx context.Context) error {
	t.since = t.opts.Since
	if t.since == nil {
		start := time.Now().UTC()
		t.since = &start
	}

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := t.drain(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// drain writes every event available now, page by page.
func (t *eventTail) drain(ctx context.Context) error {
	for {
		events, more, err := t.next(ctx)
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}
		for _, event := range events {
			if err := t.enc.Encode(event); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
		if !more {
			return nil
		}
	}
}

// next reads one page after the cursor and advances it past every event
// read, including those the type filter drops.
func (t *eventTail) next(ctx context.Context) (events []*models.Event, more bool, err error) {
	query := db.EventQuery{Cursor: t.cursor, Since: t.since, Limit: t.opts.BatchSize}
	if len(t.opts.Types) == 1 {
		query.Type = &t.opts.Types[0]
	}
	if t.opts.ConversationID != "" {
		query.ConversationID = &t.opts.ConversationID
	}

	page, err := t.repo.Query(ctx, query)
	if err != nil {
		return nil, false, err
	}
	if n := len(page.Events); n > 0 {
		t.cursor = page.Events[n-1].ID
		t.since = nil
	}
	return matchTypes(page.Events, t.opts.Types), page.NextCursor != "", nil
}

// matchTypes keeps events of the given types. With zero or one type the
// query has already filtered.
func matchTypes(events []*models.Event, types []models.EventType) []*models.Event {
	if len(types) <= 1 {
		return events
	}
	return slices.DeleteFunc(slices.Clone(events), func(e *models.Event) bool {
		return !slices.Contains(types, e.Type)
	})
}
