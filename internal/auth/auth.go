// Package auth gates pagechat behind operator sign-in.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/logging"
)

// Auth errors.
var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrNoOperators        = errors.New("no operators configured")
)

// User is the signed-in operator.
type User struct {
	ID         string    `yaml:"id" json:"id"`
	Email      string    `yaml:"email" json:"email"`
	SignedInAt time.Time `yaml:"signed_in_at" json:"signed_in_at"`
}

// Authenticator signs operators in and out.
type Authenticator interface {
	// SignIn returns the user, or nil when the credentials are rejected.
	SignIn(ctx context.Context, email, password string) (*User, error)

	// SignOut ends the session. Failures are logged, never returned.
	SignOut(ctx context.Context)

	// Current returns the signed-in user, or nil.
	Current(ctx context.Context) (*User, error)
}

// userNamespace scopes operator IDs.
var userNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pagechat:operators"))

// dummyHash is compared against when the email is unknown so rejected
// sign-ins take the same time either way.
var dummyHash = []byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5BWX4Z8k1bQ7G0yZL5N1W1Z8fZ6K2")

// LocalAuthenticator checks credentials against bcrypt hashes from config
// and keeps the session in a SessionStore.
type LocalAuthenticator struct {
	operators map[string]string
	store     *SessionStore
	clock     func() time.Time
	logger    zerolog.Logger
}

// NewLocalAuthenticator creates an authenticator for the configured
// operators.
func NewLocalAuthenticator(operators []config.OperatorConfig, store *SessionStore) *LocalAuthenticator {
	byEmail := make(map[string]string, len(operators))
	for _, op := range operators {
		email := normalizeEmail(op.Email)
		if email == "" || op.PasswordHash == "" {
			continue
		}
		byEmail[email] = op.PasswordHash
	}
	return &LocalAuthenticator{
		operators: byEmail,
		store:     store,
		clock:     time.Now,
		logger:    logging.Component("auth"),
	}
}

// SignIn verifies the password and persists the session.
func (a *LocalAuthenticator) SignIn(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	if len(a.operators) == 0 {
		return nil, ErrNoOperators
	}

	hash, ok := a.operators[email]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		a.logger.Warn().Str("email", email).Msg("sign-in rejected: unknown operator")
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		a.logger.Warn().Str("email", email).Msg("sign-in rejected: invalid password")
		return nil, nil
	}

	user := &User{
		ID:         UserID(email),
		Email:      email,
		SignedInAt: a.clock().UTC(),
	}
	if a.store != nil {
		if err := a.store.Save(user); err != nil {
			return nil, err
		}
	}
	a.logger.Info().Str("email", email).Msg("operator signed in")
	return user, nil
}

// SignOut clears the stored session.
func (a *LocalAuthenticator) SignOut(ctx context.Context) {
	if a.store == nil {
		return
	}
	if err := a.store.Clear(); err != nil {
		a.logger.Warn().Err(err).Msg("sign-out failed")
		return
	}
	a.logger.Info().Msg("operator signed out")
}

// Current returns the stored session if its operator is still configured.
func (a *LocalAuthenticator) Current(ctx context.Context) (*User, error) {
	if a.store == nil {
		return nil, nil
	}
	user, err := a.store.Load()
	if err != nil || user == nil {
		return nil, err
	}
	if _, ok := a.operators[normalizeEmail(user.Email)]; !ok {
		return nil, nil
	}
	return user, nil
}

// HashPassword returns a bcrypt hash suitable for auth.operators.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrMissingCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// UserID derives the stable operator ID for email.
func UserID(email string) string {
	return uuid.NewSHA1(userNamespace, []byte(normalizeEmail(email))).String()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
