// Package tokenstore persists session tokens between runs.
//
// A [Store] is a small key-value interface. Values may carry an expiry, after which they read as
// absent. The session manager stores the access token under [AccessToken] and the refresh token
// under [RefreshToken].
package tokenstore

import (
	"encoding/json"
	"errors"
	"time"
)

// Keys used by the session manager.
const (
	AccessToken  = "access_token"
	RefreshToken = "refresh_token"
)

// ErrInvalidKey is returned when a key is empty.
var ErrInvalidKey = errors.New("tokenstore: empty key")

// Store persists string values.
type Store interface {
	// Get returns the value stored under key. The boolean is false if no value is stored or the
	// value has expired; this is not an error.
	Get(key string) (string, bool, error)
	// Set stores value under key. If ttl is positive the value expires after ttl.
	Set(key, value string, ttl time.Duration) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

var now = time.Now

// envelope is the stored form of a value for backends without native expiry.
type envelope struct {
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func seal(value string, ttl time.Duration) ([]byte, error) {
	e := envelope{Value: value}
	if ttl > 0 {
		expiry := now().Add(ttl).UTC()
		e.ExpiresAt = &expiry
	}
	return json.Marshal(&e)
}

// open decodes data written by seal. The boolean is false if the value has expired.
func open(data []byte) (string, bool, error) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return "", false, err
	}
	if e.ExpiresAt != nil && !now().Before(*e.ExpiresAt) {
		return "", false, nil
	}
	return e.Value, true, nil
}
