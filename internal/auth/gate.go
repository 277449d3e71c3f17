package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EntryPoint is where signed-out operators are sent.
const EntryPoint = "/"

// ErrSignInRequired is returned for protected operations while signed out.
var ErrSignInRequired = errors.New("sign-in required")

// RedirectError tells the caller where to send a signed-out operator.
type RedirectError struct {
	To string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s: redirecting to %s", ErrSignInRequired, e.To)
}

func (e *RedirectError) Unwrap() error {
	return ErrSignInRequired
}

// GateState is the sign-in state of a Gate.
type GateState string

const (
	GateResolving GateState = "resolving"
	GateSignedOut GateState = "signed_out"
	GateSignedIn  GateState = "signed_in"
)

// Gate guards protected operations. It starts out resolving the initial
// sign-in state; Require waits for resolution.
type Gate struct {
	auth Authenticator

	once     sync.Once
	resolved chan struct{}

	mu    sync.RWMutex
	state GateState
	user  *User
	err   error
}

// NewGate creates a gate backed by auth.
func NewGate(auth Authenticator) *Gate {
	return &Gate{
		auth:     auth,
		resolved: make(chan struct{}),
		state:    GateResolving,
	}
}

// Resolve starts resolving the initial state in the background. It is safe
// to call more than once.
func (g *Gate) Resolve(ctx context.Context) {
	g.once.Do(func() {
		go func() {
			user, err := g.auth.Current(ctx)
			g.mu.Lock()
			g.setUser(user)
			g.err = err
			g.mu.Unlock()
			close(g.resolved)
		}()
	})
}

// State returns the current state.
func (g *Gate) State() GateState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// User returns the signed-in user, or nil.
func (g *Gate) User() *User {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user
}

// Require waits for resolution and returns the signed-in user. Signed-out
// callers get a *RedirectError to EntryPoint.
func (g *Gate) Require(ctx context.Context) (*User, error) {
	g.Resolve(ctx)

	select {
	case <-g.resolved:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, fmt.Errorf("resolve sign-in state: %w", g.err)
	}
	if g.user == nil {
		return nil, &RedirectError{To: EntryPoint}
	}
	return g.user, nil
}

// SignIn signs in through the authenticator and updates the gate. A
// rejected sign-in leaves the gate signed out and returns nil, nil.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*User, error) {
	user, err := g.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.setUser(user)
	g.err = nil
	g.mu.Unlock()
	return user, nil
}

// SignOut signs out and moves the gate to signed out.
func (g *Gate) SignOut(ctx context.Context) {
	g.auth.SignOut(ctx)
	g.mu.Lock()
	g.setUser(nil)
	g.mu.Unlock()
}

// setUser updates state; caller holds mu.
func (g *Gate) setUser(user *User) {
	g.user = user
	if user == nil {
		g.state = GateSignedOut
		return
	}
	g.state = GateSignedIn
}
