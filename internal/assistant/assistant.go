// Package assistant holds a chat session with a generative model. The whole
// history is replayed to the model on every turn.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/schema"

	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

// Assistant errors.
var (
	ErrEmptyResponse = errors.New("model returned no candidates")
	ErrNoModel       = errors.New("assistant model not configured")
)

// Config contains model settings.
type Config struct {
	APIKey          string
	Model           string
	MaxOutputTokens int
	Temperature     float64
}

// DefaultConfig returns the default model settings.
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-2.0-flash-lite",
		MaxOutputTokens: 2048,
		Temperature:     0.7,
	}
}

// TranscriptStore persists chat turns. *db.TranscriptRepository
// implements it.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, turn *models.ChatTurn) error
}

// Option customizes an Assistant.
type Option func(*Assistant)

// WithModel uses model instead of building one from the API key.
func WithModel(model llms.Model) Option {
	return func(a *Assistant) {
		a.model = model
	}
}

// WithTranscript appends every turn to store under sessionID. An empty
// sessionID keeps the generated one.
func WithTranscript(store TranscriptStore, sessionID string) Option {
	return func(a *Assistant) {
		a.transcript = store
		if sessionID != "" {
			a.sessionID = sessionID
		}
	}
}

// WithHistory seeds the conversation, e.g. from a stored transcript.
func WithHistory(turns []models.ChatTurn) Option {
	return func(a *Assistant) {
		a.history = append([]models.ChatTurn(nil), turns...)
	}
}

// WithPublisher emits assistant.replied events to pub.
func WithPublisher(pub events.Publisher) Option {
	return func(a *Assistant) {
		a.publisher = pub
	}
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(a *Assistant) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// Assistant is one chat session.
type Assistant struct {
	config     Config
	model      llms.Model
	transcript TranscriptStore
	sessionID  string
	publisher  events.Publisher
	clock      func() time.Time
	logger     zerolog.Logger

	mu        sync.RWMutex
	history   []models.ChatTurn
	busy      bool
	lastError string
}

// New creates an assistant. Without an API key (and no WithModel) the
// assistant exists but refuses every turn.
func New(ctx context.Context, cfg Config, opts ...Option) (*Assistant, error) {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = def.MaxOutputTokens
	}

	a := &Assistant{
		config:    cfg,
		sessionID: uuid.NewString(),
		clock:     time.Now,
		logger:    logging.Component("assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.model == nil && cfg.APIKey != "" {
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create model client: %w", err)
		}
		a.model = model
	}
	return a, nil
}

// SessionID identifies this chat in the transcript store.
func (a *Assistant) SessionID() string {
	return a.sessionID
}

// History returns a copy of the turns so far.
func (a *Assistant) History() []models.ChatTurn {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.ChatTurn(nil), a.history...)
}

// Busy reports whether a turn is in flight.
func (a *Assistant) Busy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.busy
}

// LastError returns the error of the most recent failed turn.
func (a *Assistant) LastError() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastError
}

// Ask sends input (and an optional image) with the full history and
// appends the reply.
//
// Blank input without an image, a turn already in flight or a missing model
// are refused silently: Ask returns nil, nil and nothing changes. On model
// failure the user turn stays in the history and no reply is appended.
func (a *Assistant) Ask(ctx context.Context, input string, image *models.Image) (*models.ChatTurn, error) {
	if strings.TrimSpace(input) == "" && image == nil {
		return nil, nil
	}
	if a.model == nil {
		a.logger.Error().Err(ErrNoModel).Msg("assistant API key not configured")
		return nil, nil
	}

	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return nil, nil
	}
	prior := append([]models.ChatTurn(nil), a.history...)
	userTurn := models.ChatTurn{
		ID:        uuid.NewString(),
		Role:      models.ChatRoleUser,
		Content:   input,
		Image:     image,
		CreatedAt: a.clock(),
	}
	a.history = append(a.history, userTurn)
	a.busy = true
	a.lastError = ""
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	a.persist(ctx, &userTurn)

	messages := BuildMessages(append(prior, userTurn))
	a.logger.Debug().Int("turns", len(messages)).Str("model", a.config.Model).Msg("generating reply")

	resp, err := a.model.GenerateContent(ctx, messages,
		llms.WithMaxTokens(a.config.MaxOutputTokens),
		llms.WithTemperature(a.config.Temperature),
	)
	if err == nil && (resp == nil || len(resp.Choices) == 0) {
		err = ErrEmptyResponse
	}
	if err != nil {
		err = fmt.Errorf("generate reply: %w", err)
		a.logger.Error().Err(err).Msg("assistant turn failed")
		a.mu.Lock()
		a.lastError = logging.Redact(err.Error())
		a.mu.Unlock()
		return nil, err
	}

	reply := models.ChatTurn{
		ID:        uuid.NewString(),
		Role:      models.ChatRoleAssistant,
		Content:   resp.Choices[0].Content,
		CreatedAt: a.clock(),
	}

	a.mu.Lock()
	a.history = append(a.history, reply)
	a.mu.Unlock()

	a.persist(ctx, &reply)
	if a.publisher != nil {
		a.publisher.Publish(ctx, events.NewEvent(models.EventTypeAssistantReplied, "", map[string]any{
			"session_id": a.sessionID,
			"turn_id":    reply.ID,
		}))
	}
	return &reply, nil
}

// Reset clears the history.
func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.lastError = ""
}

func (a *Assistant) persist(ctx context.Context, turn *models.ChatTurn) {
	if a.transcript == nil {
		return
	}
	if err := a.transcript.Append(ctx, a.sessionID, turn); err != nil {
		a.logger.Warn().Err(err).Str("session_id", a.sessionID).Msg("failed to persist chat turn")
	}
}

// BuildMessages converts turns into model messages, in order. Assistant
// turns become AI (the provider's "model" role); user turns become human.
func BuildMessages(turns []models.ChatTurn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		var parts []llms.ContentPart
		if turn.Content != "" {
			parts = append(parts, llms.TextPart(turn.Content))
		}
		if turn.Image != nil && len(turn.Image.Data) > 0 {
			parts = append(parts, llms.BinaryPart(turn.Image.MIMEType, turn.Image.Data))
		}
		if len(parts) == 0 {
			continue
		}
		messages = append(messages, llms.MessageContent{
			Role:  messageRole(turn.Role),
			Parts: parts,
		})
	}
	return messages
}

func messageRole(role models.ChatRole) schema.ChatMessageType {
	if role == models.ChatRoleAssistant {
		return schema.ChatMessageTypeAI
	}
	return schema.ChatMessageTypeHuman
}
