// Package session tracks who is logged in.
//
// A [Manager] owns the client's identity. It restores a persisted token at startup
// ([Manager.Bootstrap]), exchanges credentials for tokens ([Manager.Login], [Manager.Register]),
// and ends the session either at the user's request ([Manager.Logout]) or when the server rejects
// the session's token ([Manager.Invalidate]).
//
// The Manager moves through the states
//
//	Unbootstrapped -> Bootstrapping -> {Authenticated, Anonymous}
//	Anonymous -> Authenticated       (Login, Register)
//	Authenticated -> Anonymous       (Logout, Invalidate, token expiry)
//
// and never returns to Bootstrapping. Every transition is published to subscribers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/covoit/carpool-sdk/internal/dispatcher"
	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/protocol"
	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

// Default token lifetimes, matching the server's token configuration.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var now = time.Now

// Authenticator is the identity endpoint used by a Manager. It is implemented by
// [account.Account].
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*account.AuthResult, error)
	Register(ctx context.Context, req *account.RegisterRequest) (*account.AuthResult, error)
	Profile(ctx context.Context) (*account.User, error)
	RefreshToken(ctx context.Context, refresh string) (*account.TokenPair, error)
}

// Manager holds the current Session. It is safe for concurrent use.
type Manager struct {
	// AccessTTL and RefreshTTL set how long persisted tokens are kept.
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	auth  Authenticator
	store tokenstore.Store

	lock    sync.Mutex
	state   State
	session *Session
	pending string // token being validated during bootstrap
	events  *dispatcher.Dispatcher[Event]
}

// New returns a Manager in StateUnbootstrapped.
func New(auth Authenticator, store tokenstore.Store) *Manager {
	return &Manager{
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		auth:       auth,
		store:      store,
		events:     dispatcher.New[Event]("session"),
	}
}

// Subscribe returns a Subscription to state transitions.
func (m *Manager) Subscribe() Subscription {
	return m.events.Subscribe()
}

// Close ends all subscriptions.
func (m *Manager) Close() {
	m.events.Close()
}

// transition must be called with lock held.
func (m *Manager) transition(state State, s *Session, reason string) {
	previous := m.state
	m.state = state
	m.session = s
	log.Debug("Session %s -> %s (%s)", previous, state, reason)
	m.events.Publish(Event{State: state, Session: s, Reason: reason})
}

// clearTokens must be called with lock held.
func (m *Manager) clearTokens() error {
	m.pending = ""
	return errors.Join(m.store.Remove(tokenstore.AccessToken), m.store.Remove(tokenstore.RefreshToken))
}

// expireLocked ends the session if its token expired. It must be called with lock held.
func (m *Manager) expireLocked() {
	if m.state != StateAuthenticated || !m.session.Expired() {
		return
	}
	if err := m.clearTokens(); err != nil {
		log.Warning("Failed to remove expired tokens: %s", err)
	}
	m.transition(StateAnonymous, nil, "token expired")
}

// Bootstrap restores the session from the persisted access token. If there is no token, the
// Manager becomes Anonymous without contacting the server. Otherwise the token is validated with a
// single profile request; if that request fails for any reason, persisted tokens are removed, the
// Manager becomes Anonymous, and the error is returned.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.lock.Lock()
	if m.state != StateUnbootstrapped {
		m.lock.Unlock()
		return protocol.ErrAlreadyBootstrapped
	}
	m.transition(StateBootstrapping, nil, "bootstrap")

	token, ok, err := m.store.Get(tokenstore.AccessToken)
	if err != nil {
		log.Warning("Could not read persisted token: %s", err)
		m.transition(StateAnonymous, nil, "token store unavailable")
		m.lock.Unlock()
		return fmt.Errorf("could not read persisted token: %w", err)
	}
	if !ok {
		m.transition(StateAnonymous, nil, "no persisted token")
		m.lock.Unlock()
		return nil
	}
	expiry := account.TokenExpiry(token, m.AccessTTL)
	if !now().Before(expiry) {
		if err := m.clearTokens(); err != nil {
			log.Warning("Failed to remove expired tokens: %s", err)
		}
		m.transition(StateAnonymous, nil, "persisted token expired")
		m.lock.Unlock()
		return nil
	}
	m.pending = token
	m.lock.Unlock()

	user, fetchErr := m.auth.Profile(ctx)

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.pending != token {
		// Logout was called while the profile request was in flight.
		m.transition(StateAnonymous, nil, "logged out during bootstrap")
		return fetchErr
	}
	if fetchErr != nil {
		log.Info("Persisted session rejected: %s", fetchErr)
		if err := m.clearTokens(); err != nil {
			log.Warning("Failed to remove rejected tokens: %s", err)
		}
		m.transition(StateAnonymous, nil, "persisted token rejected")
		return fetchErr
	}
	refresh, _, err := m.store.Get(tokenstore.RefreshToken)
	if err != nil {
		log.Warning("Could not read refresh token: %s", err)
	}
	m.pending = ""
	m.transition(StateAuthenticated, newSession(user, token, refresh, expiry), "restored")
	return nil
}

// authFailure converts the server's rejection of credentials into an AuthError that carries the
// server's message. Transport and server failures are returned unchanged.
func authFailure(err error, fallback string) error {
	var netErr *protocol.NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	var rejected protocol.Error
	if !errors.As(err, &rejected) {
		return err
	}
	code := rejected.StatusCode()
	if code < 400 || code >= 500 {
		return err
	}
	message := fallback
	var authErr *protocol.AuthError
	var validationErr *protocol.ValidationError
	switch {
	case errors.As(err, &authErr) && authErr.Message != "":
		message = authErr.Message
	case errors.As(err, &validationErr) && validationErr.Message != "":
		message = validationErr.Message
	}
	return &protocol.AuthError{Code: code, Message: message, Err: err}
}

func (m *Manager) ready() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state == StateUnbootstrapped || m.state == StateBootstrapping {
		return protocol.ErrNotReady
	}
	return nil
}

// Login exchanges credentials for a session. On success the tokens are persisted and the Manager
// becomes Authenticated, replacing any existing session. If the server rejects the credentials,
// the returned error is a *protocol.AuthError carrying the server's message.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	result, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, authFailure(err, "login failed")
	}
	return m.establish(result, "login")
}

// Register creates an account and logs into it. It fails like Login.
func (m *Manager) Register(ctx context.Context, req *account.RegisterRequest) (*Session, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	result, err := m.auth.Register(ctx, req)
	if err != nil {
		return nil, authFailure(err, "registration failed")
	}
	return m.establish(result, "registration")
}

func (m *Manager) establish(result *account.AuthResult, reason string) (*Session, error) {
	if result.Access == "" {
		return nil, &protocol.AuthError{Code: 401, Message: reason + " failed: no token issued"}
	}
	expiry := account.TokenExpiry(result.Access, m.AccessTTL)

	m.lock.Lock()
	defer m.lock.Unlock()
	if err := m.store.Set(tokenstore.AccessToken, result.Access, m.AccessTTL); err != nil {
		return nil, fmt.Errorf("could not persist access token: %w", err)
	}
	if result.Refresh != "" {
		if err := m.store.Set(tokenstore.RefreshToken, result.Refresh, m.RefreshTTL); err != nil {
			if rmErr := m.store.Remove(tokenstore.AccessToken); rmErr != nil {
				log.Warning("Failed to remove access token after refresh token was not persisted: %s", rmErr)
			}
			return nil, fmt.Errorf("could not persist refresh token: %w", err)
		}
	}
	s := newSession(&result.User, result.Access, result.Refresh, expiry)
	log.Info("Logged in as %s", s.Email)
	m.transition(StateAuthenticated, s, reason)
	return s, nil
}

// Logout removes persisted tokens and ends the session. It does not contact the server.
func (m *Manager) Logout() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	err := m.clearTokens()
	if m.state == StateAuthenticated {
		m.transition(StateAnonymous, nil, "logout")
	}
	if err != nil {
		return fmt.Errorf("could not remove persisted tokens: %w", err)
	}
	return nil
}

// Invalidate ends the session because the server rejected its token. It returns true if this call
// ended the session; concurrent and repeated calls return false and have no effect.
func (m *Manager) Invalidate(reason string) bool {
	return m.InvalidateToken("", reason)
}

// InvalidateToken is like Invalidate, but only ends the session if token is the session's current
// access token. Rejections of a token that a later login or refresh has replaced are ignored. An
// empty token matches any session.
func (m *Manager) InvalidateToken(token, reason string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state != StateAuthenticated {
		return false
	}
	if token != "" && token != m.session.Token {
		log.Debug("Ignoring rejection of a replaced token: %s", reason)
		return false
	}
	if err := m.clearTokens(); err != nil {
		log.Warning("Failed to remove invalidated tokens: %s", err)
	}
	log.Info("Session invalidated: %s", reason)
	m.transition(StateAnonymous, nil, reason)
	return true
}

// Refresh exchanges the refresh token for a new access token. If the server rejects the refresh
// token, the session is invalidated.
func (m *Manager) Refresh(ctx context.Context) (*Session, error) {
	m.lock.Lock()
	m.expireLocked()
	if m.state != StateAuthenticated {
		m.lock.Unlock()
		return nil, protocol.ErrNoSession
	}
	current := m.session
	m.lock.Unlock()

	if current.RefreshToken == "" {
		return nil, protocol.ErrNoRefreshToken
	}
	pair, err := m.auth.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		if protocol.IsUnauthorized(err) {
			m.InvalidateToken(current.Token, "refresh token rejected")
		}
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session != current {
		return nil, protocol.ErrNoSession
	}
	if err := m.store.Set(tokenstore.AccessToken, pair.Access, m.AccessTTL); err != nil {
		return nil, fmt.Errorf("could not persist access token: %w", err)
	}
	refresh := current.RefreshToken
	if pair.Refresh != "" {
		refresh = pair.Refresh
		if err := m.store.Set(tokenstore.RefreshToken, refresh, m.RefreshTTL); err != nil {
			log.Warning("Could not persist rotated refresh token: %s", err)
		}
	}
	s := newSession(&current.User, pair.Access, refresh, account.TokenExpiry(pair.Access, m.AccessTTL))
	m.transition(StateAuthenticated, s, "token refreshed")
	return s, nil
}

// Current returns the session, or nil if there is none.
func (m *Manager) Current() *Session {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.expireLocked()
	return m.session
}

// State returns the Manager's current state.
func (m *Manager) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.expireLocked()
	return m.state
}

// AccessToken returns the token that should authorize API requests. A token is available while a
// persisted token is being validated and while a session exists.
func (m *Manager) AccessToken() (string, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	switch m.state {
	case StateBootstrapping:
		return m.pending, m.pending != ""
	case StateAuthenticated:
		m.expireLocked()
		if m.session != nil {
			return m.session.Token, true
		}
	}
	return "", false
}

// UpdateUser replaces the profile held by the current session, for example after the user edits
// it. It returns the new session, or nil if there is no session or it belongs to another user.
func (m *Manager) UpdateUser(user *account.User) *Session {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.expireLocked()
	if m.state != StateAuthenticated || m.session.UserID != user.ID {
		return nil
	}
	s := newSession(user, m.session.Token, m.session.RefreshToken, m.session.TokenExpiry)
	m.transition(StateAuthenticated, s, "profile updated")
	return s
}
