package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidViewMark is returned for marks without a conversation ID.
var ErrInvalidViewMark = errors.New("invalid view mark")

// ViewMarkRepository stores when the operator last opened each conversation
// of one page.
type ViewMarkRepository struct {
	db     *DB
	pageID string
}

// NewViewMarkRepository creates a repository scoped to pageID.
func NewViewMarkRepository(db *DB, pageID string) *ViewMarkRepository {
	return &ViewMarkRepository{db: db, pageID: pageID}
}

// SetViewed upserts the mark for a conversation.
func (r *ViewMarkRepository) SetViewed(ctx context.Context, conversationID string, at time.Time) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrInvalidViewMark
	}
	_, err := r.db.execWithRetry(ctx, `
		INSERT INTO view_marks (page_id, conversation_id, viewed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(page_id, conversation_id) DO UPDATE SET viewed_at = excluded.viewed_at
	`, r.pageID, conversationID, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to store view mark: %w", err)
	}
	return nil
}

// LastViewed returns the mark for a conversation; ok is false when none exists.
func (r *ViewMarkRepository) LastViewed(ctx context.Context, conversationID string) (time.Time, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `
		SELECT viewed_at FROM view_marks WHERE page_id = ? AND conversation_id = ?
	`, r.pageID, conversationID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read view mark: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid view mark timestamp %q: %w", raw, err)
	}
	return at, true, nil
}

// All returns every mark for the page.
func (r *ViewMarkRepository) All(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, viewed_at FROM view_marks WHERE page_id = ?
	`, r.pageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list view marks: %w", err)
	}
	defer rows.Close()

	marks := make(map[string]time.Time)
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan view mark: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		marks[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating view marks: %w", err)
	}
	return marks, nil
}
