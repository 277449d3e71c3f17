// Package config handles pagechat configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tOgg1/pagechat/internal/models"
)

// Graph configuration errors.
var (
	ErrMissingPageID      = errors.New("graph.page_id is required")
	ErrMissingAccessToken = errors.New("graph.access_token is required")
	ErrMissingAPIKey      = errors.New("assistant.api_key is required")
)

// Config is the root configuration structure for pagechat.
type Config struct {
	Global    GlobalConfig    `yaml:"global" mapstructure:"global"`
	Graph     GraphConfig     `yaml:"graph" mapstructure:"graph"`
	Polling   PollingConfig   `yaml:"polling" mapstructure:"polling"`
	Assistant AssistantConfig `yaml:"assistant" mapstructure:"assistant"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	TUI       TUIConfig       `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig locates pagechat's files: the database and logs live under
// DataDir, state files such as the CLI context under ConfigDir.
type GlobalConfig struct {
	DataDir   string `yaml:"data_dir" mapstructure:"data_dir"`
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// GraphConfig contains Messenger provider settings.
type GraphConfig struct {
	// BaseURL is the versioned Graph API root.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// PageID is the operator page; messages from it are page-authored.
	PageID string `yaml:"page_id" mapstructure:"page_id"`

	// AccessToken is the page access token.
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`

	// Timeout bounds every Graph request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PollingConfig contains the inbox refresh cadence.
type PollingConfig struct {
	// ConversationInterval is how often the conversation list is refetched.
	ConversationInterval time.Duration `yaml:"conversation_interval" mapstructure:"conversation_interval"`

	// MessageInterval is how often the open conversation is checked for news.
	MessageInterval time.Duration `yaml:"message_interval" mapstructure:"message_interval"`

	// StalenessPageSize is how many messages a staleness check fetches.
	StalenessPageSize int `yaml:"staleness_page_size" mapstructure:"staleness_page_size"`

	// SendSettleDelay is how long to wait after a send before refetching.
	SendSettleDelay time.Duration `yaml:"send_settle_delay" mapstructure:"send_settle_delay"`
}

// AssistantConfig contains generative model settings.
type AssistantConfig struct {
	APIKey          string  `yaml:"api_key" mapstructure:"api_key"`
	Model           string  `yaml:"model" mapstructure:"model"`
	MaxOutputTokens int     `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`

	// PersistTranscripts stores assistant turns in the database.
	PersistTranscripts bool `yaml:"persist_transcripts" mapstructure:"persist_transcripts"`
}

// AuthConfig contains operator sign-in settings.
type AuthConfig struct {
	// Required gates inbox and assistant commands behind sign-in.
	Required bool `yaml:"required" mapstructure:"required"`

	// Operators lists who may sign in.
	Operators []OperatorConfig `yaml:"operators" mapstructure:"operators"`
}

// OperatorConfig is one operator credential.
type OperatorConfig struct {
	Email string `yaml:"email" mapstructure:"email"`

	// PasswordHash is a bcrypt hash of the operator password.
	PasswordHash string `yaml:"password_hash" mapstructure:"password_hash"`
}

// DatabaseConfig points at the SQLite file holding the event log,
// transcripts and view marks. An empty Path means DataDir/pagechat.db.
type DatabaseConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// CacheConfig enables the redis view mark store when RedisURL is set.
type CacheConfig struct {
	RedisURL    string        `yaml:"redis_url" mapstructure:"redis_url"`
	ViewMarkTTL time.Duration `yaml:"view_mark_ttl" mapstructure:"view_mark_ttl"`
}

// EventsConfig enables forwarding inbox events to NATS when NATSURL is set.
// Subjects are SubjectPrefix + "." + event type.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" mapstructure:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" mapstructure:"subject_prefix"`
}

// LoggingConfig controls the zerolog output. Format is "console" or "json";
// File, when set, replaces stderr.
type LoggingConfig struct {
	Level        string `yaml:"level" mapstructure:"level"`
	Format       string `yaml:"format" mapstructure:"format"`
	File         string `yaml:"file" mapstructure:"file"`
	EnableCaller bool   `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig tunes the interactive inbox.
type TUIConfig struct {
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
	PreviewWidth   int  `yaml:"preview_width" mapstructure:"preview_width"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(home, ".local", "share", "pagechat"),
			ConfigDir: filepath.Join(home, ".config", "pagechat"),
		},
		Graph: GraphConfig{
			BaseURL: "https://graph.facebook.com/v18.0",
			Timeout: 15 * time.Second,
		},
		Polling: PollingConfig{
			ConversationInterval: 10 * time.Second,
			MessageInterval:      3 * time.Second,
			StalenessPageSize:    5,
			SendSettleDelay:      time.Second,
		},
		Assistant: AssistantConfig{
			Model:           "gemini-2.0-flash-lite",
			MaxOutputTokens: 2048,
			Temperature:     0.7,
		},
		Database: DatabaseConfig{BusyTimeoutMs: 5000},
		Cache: CacheConfig{
			ViewMarkTTL: 30 * 24 * time.Hour,
		},
		Events: EventsConfig{
			SubjectPrefix: "pagechat",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		TUI: TUIConfig{
			ShowTimestamps: true,
			PreviewWidth:   32,
		},
	}
}

// Validate checks if the configuration is valid. Credentials are checked
// separately by ValidateGraph and ValidateAssistant because not every command
// needs them.
func (c *Config) Validate() error {
	validation := &models.ValidationErrors{}

	if c.Graph.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Graph.BaseURL); err != nil {
			validation.Addf("graph.base_url", "must be an absolute URL")
		}
	}
	if c.Graph.Timeout < 0 {
		validation.Addf("graph.timeout", "must not be negative")
	}

	if c.Polling.ConversationInterval < 100*time.Millisecond {
		validation.Addf("polling.conversation_interval", "must be at least 100ms")
	}
	if c.Polling.MessageInterval < 100*time.Millisecond {
		validation.Addf("polling.message_interval", "must be at least 100ms")
	}
	if c.Polling.StalenessPageSize < 1 || c.Polling.StalenessPageSize > 100 {
		validation.Addf("polling.staleness_page_size", "must be between 1 and 100")
	}
	if c.Polling.SendSettleDelay < 0 {
		validation.Addf("polling.send_settle_delay", "must not be negative")
	}

	if c.Assistant.MaxOutputTokens < 1 {
		validation.Addf("assistant.max_output_tokens", "must be at least 1")
	}
	if c.Assistant.Temperature < 0 || c.Assistant.Temperature > 2 {
		validation.Addf("assistant.temperature", "must be between 0 and 2")
	}

	for i, op := range c.Auth.Operators {
		field := fmt.Sprintf("auth.operators[%d]", i)
		if strings.TrimSpace(op.Email) == "" {
			validation.Addf(field+".email", "is required")
		}
		if !strings.HasPrefix(op.PasswordHash, "$2") {
			validation.Addf(field+".password_hash", "must be a bcrypt hash")
		}
	}
	if c.Auth.Required && len(c.Auth.Operators) == 0 {
		validation.Addf("auth.operators", "at least one operator is required when auth.required is set")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		validation.Addf("logging.format", "must be console or json")
	}

	return validation.Err()
}

// ValidateGraph checks the Messenger credentials are present.
func (c *Config) ValidateGraph() error {
	validation := &models.ValidationErrors{}
	if strings.TrimSpace(c.Graph.PageID) == "" {
		validation.Add("graph.page_id", ErrMissingPageID)
	}
	if strings.TrimSpace(c.Graph.AccessToken) == "" {
		validation.Add("graph.access_token", ErrMissingAccessToken)
	}
	return validation.Err()
}

// ValidateAssistant checks the generative model credentials are present.
func (c *Config) ValidateAssistant() error {
	if strings.TrimSpace(c.Assistant.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// EnsureDirectories creates the data and config directories plus the
// parents of a relocated database or log file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Global.DataDir, c.Global.ConfigDir, filepath.Dir(c.DatabasePath())}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns Database.Path, or pagechat.db under DataDir.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "pagechat.db")
}

// ContextPath returns the CLI context file path.
func (c *Config) ContextPath() string {
	return filepath.Join(c.Global.ConfigDir, "context.yaml")
}
