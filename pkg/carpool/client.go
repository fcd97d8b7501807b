// Package carpool ties the session manager and the query cache to the carpool API.
//
// A [Client] is created once when the application starts and closed when it exits. It owns the
// HTTP transport, the [session.Manager] and the [cache.Cache], and keeps them consistent:
//
//   - API requests are authorized with the session's access token.
//   - A request rejected with HTTP 401 ends the session whose token it carried.
//   - Cached data is dropped whenever the session ends or changes hands.
//   - Each mutation invalidates the cache entries listed in [InvalidationRules].
package carpool

import (
	"context"
	"errors"
	"sync"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/account"
	"github.com/covoit/carpool-sdk/pkg/cache"
	"github.com/covoit/carpool-sdk/pkg/connector/inet"
	"github.com/covoit/carpool-sdk/pkg/protocol"
	"github.com/covoit/carpool-sdk/pkg/session"
	"github.com/covoit/carpool-sdk/pkg/tokenstore"
)

// Config controls how a Client is constructed.
type Config struct {
	// BaseURL is the API root. Defaults to inet.DefaultBaseURL.
	BaseURL string
	// UserAgent identifies the application. A library version is appended.
	UserAgent string
	// Store persists tokens. Defaults to an in-memory store, which does not survive restarts.
	Store tokenstore.Store
	// MaxEntries bounds the cache. Zero means unbounded.
	MaxEntries int
}

// Client is the application's handle on the carpool service. It is safe for concurrent use.
type Client struct {
	Account *account.Account
	Session *session.Manager
	Cache   *cache.Cache

	sub       session.Subscription
	watchDone chan struct{}
	closeOnce sync.Once
}

// New constructs a Client. The session is not restored until [Client.Bootstrap] is called.
func New(config Config) (*Client, error) {
	store := config.Store
	if store == nil {
		store = tokenstore.NewMemory()
	}
	conn, err := inet.NewConnection(config.BaseURL, nil, account.BuildUserAgent(config.UserAgent))
	if err != nil {
		return nil, err
	}
	acct := account.New(conn)
	manager := session.New(acct, store)
	conn.SetTokenSource(manager)

	c := &Client{
		Account:   acct,
		Session:   manager,
		Cache:     cache.New(config.MaxEntries),
		watchDone: make(chan struct{}),
	}
	c.Cache.OnUnauthorized(c.unauthorized)
	c.sub = manager.Subscribe()
	go c.watch()
	return c, nil
}

// unauthorized ends the session that sent a rejected request. A rejection that arrives after the
// token was replaced, by a new login for example, leaves the new session alone.
func (c *Client) unauthorized(err error) {
	var token string
	var authErr *protocol.AuthError
	if errors.As(err, &authErr) {
		token = authErr.Token
	}
	if c.Session.InvalidateToken(token, "server rejected token: "+err.Error()) {
		c.Cache.Clear()
	}
}

// watch clears the cache when the session ends or a different user logs in. Transitions made
// through the Client clear the cache synchronously; this catches the rest, such as token expiry.
func (c *Client) watch() {
	defer close(c.watchDone)
	var userID int64
	for event := range c.sub.Recv() {
		switch event.State {
		case session.StateAnonymous:
			if userID != 0 {
				c.Cache.Clear()
			}
			userID = 0
		case session.StateAuthenticated:
			if userID != 0 && userID != event.Session.UserID {
				c.Cache.Clear()
			}
			userID = event.Session.UserID
		}
	}
}

// Close stops background work and drops cached data. Persisted tokens are kept.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.sub.Close()
		<-c.watchDone
		c.Session.Close()
		c.Cache.Clear()
		c.Cache.Close()
	})
}

// Bootstrap restores the persisted session. See [session.Manager.Bootstrap].
func (c *Client) Bootstrap(ctx context.Context) error {
	return c.Session.Bootstrap(ctx)
}

// Login starts a session for the given credentials. Cached data from any previous session is
// dropped.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Session, error) {
	s, err := c.Session.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.Cache.Clear()
	return s, nil
}

// Register creates an account and starts a session for it.
func (c *Client) Register(ctx context.Context, req *account.RegisterRequest) (*session.Session, error) {
	s, err := c.Session.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	c.Cache.Clear()
	return s, nil
}

// Logout ends the session and drops cached data.
func (c *Client) Logout() error {
	err := c.Session.Logout()
	c.Cache.Clear()
	return err
}

// Refresh renews the session's access token.
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	s, err := c.Session.Refresh(ctx)
	if protocol.IsUnauthorized(err) {
		c.Cache.Clear()
	}
	return s, err
}

// Current returns the active session, or nil.
func (c *Client) Current() *session.Session {
	return c.Session.Current()
}

func (c *Client) requireSession() error {
	if c.Session.Current() == nil {
		switch c.Session.State() {
		case session.StateUnbootstrapped, session.StateBootstrapping:
			return protocol.ErrNotReady
		}
		return protocol.ErrNoSession
	}
	return nil
}

func query[T any](ctx context.Context, c *Client, key cache.Key, fetch func(context.Context) (T, error)) (T, error) {
	if err := c.requireSession(); err != nil {
		var zero T
		return zero, err
	}
	return cache.Get(ctx, c.Cache, key, fetch)
}

func mutate[T any](ctx context.Context, c *Client, m Mutation, fn func(context.Context) (T, error)) (T, error) {
	if err := c.requireSession(); err != nil {
		var zero T
		return zero, err
	}
	log.Debug("Running %s", m)
	return cache.Apply(ctx, c.Cache, fn, InvalidationRules[m]...)
}
