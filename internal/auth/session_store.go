package auth

import "github.com/tOgg1/pagechat/internal/config"

// SessionStore keeps the signed-in operator on disk, readable by the owner
// only.
type SessionStore struct {
	file *config.StateFile[User]
}

// NewSessionStore creates a store at path, or at
// ~/.config/pagechat/session.yaml when path is empty.
func NewSessionStore(path string) *SessionStore {
	if path == "" {
		path = config.DefaultStatePath("session.yaml")
	}
	return &SessionStore{file: config.NewStateFile[User](path, 0o600)}
}

// Path returns the session file path.
func (s *SessionStore) Path() string {
	return s.file.Path()
}

// Load returns the stored user, or nil if nobody is signed in.
func (s *SessionStore) Load() (*User, error) {
	user, found, err := s.file.Load()
	if err != nil || !found || user.Email == "" {
		return nil, err
	}
	return user, nil
}

// Save records user as signed in.
func (s *SessionStore) Save(user *User) error {
	return s.file.Save(user)
}

// Clear signs everyone out.
func (s *SessionStore) Clear() error {
	return s.file.Remove()
}
