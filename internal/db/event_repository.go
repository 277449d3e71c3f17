package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/pagechat/internal/models"
)

// Event repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

// eventTimeLayout is fixed width so stored timestamps sort lexically.
const eventTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// EventRepository handles event log persistence.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery defines filters for querying events.
type EventQuery struct {
	Type           *models.EventType // Filter by event type
	ConversationID *string           // Filter by conversation
	Since          *time.Time        // Events at or after this time (inclusive)
	Cursor         string            // Pagination cursor (event ID)
	Limit          int               // Max results to return
}

// EventPage represents a page of query results.
type EventPage struct {
	Events     []*models.Event
	NextCursor string
}

// Create appends an event to the log, assigning an ID and timestamp when
// missing.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event == nil || event.Type == "" {
		return ErrInvalidEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	} else {
		event.Timestamp = event.Timestamp.UTC()
	}

	var payloadJSON *string
	if len(event.Payload) > 0 {
		s := string(event.Payload)
		payloadJSON = &s
	}
	var conversationID *string
	if event.ConversationID != "" {
		conversationID = &event.ConversationID
	}

	_, err := r.db.execWithRetry(ctx, `
		INSERT INTO events (id, timestamp, type, conversation_id, payload_json)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.ID,
		event.Timestamp.Format(eventTimeLayout),
		string(event.Type),
		conversationID,
		payloadJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

const eventColumns = `id, timestamp, type, conversation_id, payload_json`

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return event, err
}

// where renders the query filters as a SQL condition and its arguments.
func (q EventQuery) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if q.Type != nil {
		add(`type = ?`, string(*q.Type))
	}
	if q.ConversationID != nil {
		add(`conversation_id = ?`, *q.ConversationID)
	}
	if q.Since != nil {
		add(`timestamp >= ?`, q.Since.UTC().Format(eventTimeLayout))
	}
	if q.Cursor != "" {
		add(`(timestamp, id) > (SELECT timestamp, id FROM events WHERE id = ?)`, q.Cursor)
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Query returns one page of matching events in log order. NextCursor is set
// when more events follow the page.
func (r *EventRepository) Query(ctx context.Context, q EventQuery) (*EventPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	cond, args := q.where()
	events, err := r.collect(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+cond+` ORDER BY timestamp, id LIMIT ?`,
		append(args, limit+1)...)
	if err != nil {
		return nil, err
	}

	page := &EventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.NextCursor = events[limit-1].ID
	}
	return page, nil
}

// Latest returns the most recent events, oldest first.
func (r *EventRepository) Latest(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.collect(ctx, `
		SELECT `+eventColumns+` FROM (
			SELECT * FROM events ORDER BY timestamp DESC, id DESC LIMIT ?
		) ORDER BY timestamp, id
	`, limit)
}

func (r *EventRepository) collect(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	var timestamp, eventType string
	var conversationID, payloadJSON sql.NullString

	if err := row.Scan(&event.ID, &timestamp, &eventType, &conversationID, &payloadJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Type = models.EventType(eventType)
	event.ConversationID = conversationID.String
	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		event.Timestamp = t
	}
	if payloadJSON.Valid {
		event.Payload = json.RawMessage(payloadJSON.String)
	}
	return &event, nil
}
