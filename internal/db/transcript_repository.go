package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tOgg1/pagechat/internal/models"
)

// ErrInvalidTranscript is returned when a session ID is missing.
var ErrInvalidTranscript = errors.New("invalid transcript")

// TranscriptRepository persists assistant chat turns. Image bytes are not
// stored, only their MIME type.
type TranscriptRepository struct {
	db *DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// SessionSummary describes a stored assistant session.
type SessionSummary struct {
	ID     string    `json:"id"`
	Turns  int       `json:"turns"`
	LastAt time.Time `json:"last_at"`
}

// Append stores a turn at the end of a session.
func (r *TranscriptRepository) Append(ctx context.Context, sessionID string, turn *models.ChatTurn) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidTranscript
	}
	if err := turn.Validate(); err != nil {
		return err
	}
	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	var mime *string
	if turn.Image != nil && turn.Image.MIMEType != "" {
		mime = &turn.Image.MIMEType
	}

	return r.db.writeTx(ctx, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM assistant_turns WHERE session_id = ?`,
			sessionID,
		).Scan(&seq); err != nil {
			return fmt.Errorf("failed to allocate turn sequence: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assistant_turns (id, session_id, seq, role, content, image_mime, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, turn.ID, sessionID, seq, string(turn.Role), turn.Content, mime, turn.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
		return nil
	})
}

// ListSession returns a session's turns in order.
func (r *TranscriptRepository) ListSession(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content, image_mime, created_at
		FROM assistant_turns WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ChatTurn
	for rows.Next() {
		var turn models.ChatTurn
		var role, createdAt string
		var mime sql.NullString
		if err := rows.Scan(&turn.ID, &role, &turn.Content, &mime, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = models.ChatRole(role)
		if mime.Valid {
			turn.Image = &models.Image{MIMEType: mime.String}
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			turn.CreatedAt = t
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turns: %w", err)
	}
	return turns, nil
}

// Sessions lists stored sessions, most recent first.
func (r *TranscriptRepository) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MAX(created_at) AS last_at
		FROM assistant_turns
		GROUP BY session_id
		ORDER BY last_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var lastAt string
		if err := rows.Scan(&s.ID, &s.Turns, &lastAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, lastAt); err == nil {
			s.LastAt = t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}
