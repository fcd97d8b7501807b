package session

import (
	"fmt"
	"time"

	"github.com/covoit/carpool-sdk/pkg/account"
)

// State is the lifecycle stage of a Manager.
type State int

const (
	// StateUnbootstrapped is the initial state. No persisted token has been read yet.
	StateUnbootstrapped State = iota
	// StateBootstrapping means a persisted token is being validated with the server.
	StateBootstrapping
	// StateAuthenticated means a Session exists.
	StateAuthenticated
	// StateAnonymous means bootstrap completed and no Session exists.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnbootstrapped:
		return "unbootstrapped"
	case StateBootstrapping:
		return "bootstrapping"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session describes the authenticated user. Sessions are immutable; each transition creates a new
// one.
type Session struct {
	UserID       int64            `json:"user_id"`
	Email        string           `json:"email"`
	DisplayName  string           `json:"display_name"`
	Role         account.UserType `json:"role"`
	Verified     bool             `json:"verified"`
	Token        string           `json:"-"`
	RefreshToken string           `json:"-"`
	TokenExpiry  time.Time        `json:"token_expiry"`
	User         account.User     `json:"user"`
}

func newSession(user *account.User, token, refresh string, expiry time.Time) *Session {
	return &Session{
		UserID:       user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName(),
		Role:         user.UserType,
		Verified:     user.IsVerified,
		Token:        token,
		RefreshToken: refresh,
		TokenExpiry:  expiry,
		User:         *user,
	}
}

// Expired returns true if the session's access token has expired.
func (s *Session) Expired() bool {
	return !s.TokenExpiry.IsZero() && !now().Before(s.TokenExpiry)
}

// Event is published on every state transition. Session is nil unless State is
// StateAuthenticated.
type Event struct {
	State   State    `json:"state"`
	Session *Session `json:"session,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Subscription delivers session events. Events are dropped if the subscriber falls behind; read
// [Manager.State] to resynchronize.
type Subscription interface {
	Recv() <-chan Event
	Close()
}
