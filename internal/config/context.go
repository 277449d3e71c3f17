package config

import "time"

// Context remembers the conversation the operator last opened from the CLI,
// so `pagechat send` and `pagechat messages` work without an argument.
type Context struct {
	ConversationID   string    `yaml:"conversation,omitempty"`
	ConversationName string    `yaml:"conversation_name,omitempty"`
	UpdatedAt        time.Time `yaml:"updated_at,omitempty"`
}

// IsEmpty reports whether no conversation is remembered.
func (c *Context) IsEmpty() bool {
	return c.ConversationID == ""
}

// SetConversation remembers the opened conversation.
func (c *Context) SetConversation(id, name string) {
	c.ConversationID = id
	c.ConversationName = name
	c.UpdatedAt = time.Now()
}

// Label names the remembered conversation for prompts and hints.
func (c *Context) Label() string {
	switch {
	case c.IsEmpty():
		return "(none)"
	case c.ConversationName != "":
		return c.ConversationName
	case len(c.ConversationID) > 8:
		return c.ConversationID[:8]
	default:
		return c.ConversationID
	}
}

// ContextStore keeps the CLI context in a YAML state file.
type ContextStore struct {
	file *StateFile[Context]
}

// NewContextStore stores the context at path, or at
// ~/.config/pagechat/context.yaml when path is empty.
func NewContextStore(path string) *ContextStore {
	if path == "" {
		path = DefaultStatePath("context.yaml")
	}
	return &ContextStore{file: NewStateFile[Context](path, 0o644)}
}

// Path returns the context file path.
func (s *ContextStore) Path() string {
	return s.file.Path()
}

// Load returns the saved context, empty when none was saved.
func (s *ContextStore) Load() (*Context, error) {
	ctx, _, err := s.file.Load()
	return ctx, err
}

// Save replaces the saved context.
func (s *ContextStore) Save(ctx *Context) error {
	return s.file.Save(ctx)
}

// Clear forgets the saved context.
func (s *ContextStore) Clear() error {
	return s.file.Remove()
}
