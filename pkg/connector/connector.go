package connector

import (
	"context"
	"net/url"
)

// MaxResponseLength caps the maximum byte-length of responses that connectors must support.
const MaxResponseLength = 4 << 20

// TokenSource supplies the bearer token attached to outgoing requests.
//
// Implementations must be thread safe.
type TokenSource interface {
	// AccessToken returns the current access token. If ok is false, requests are sent without an
	// Authorization header.
	AccessToken() (token string, ok bool)
}

// Connector sends JSON requests to the carpool REST API.
type Connector interface {
	// Do sends a request to endpoint, which is relative to the API base URL (e.g., "trips/12/").
	// The body is JSON-encoded unless it is already a []byte; a nil body sends no payload.
	//
	// Non-2xx responses are returned as errors from the protocol package taxonomy. Transport
	// failures are returned as *protocol.NetworkError. Implementations never retry.
	//
	// Implementations must be thread safe.
	Do(ctx context.Context, method, endpoint string, query url.Values, body interface{}) ([]byte, error)

	// BaseURL returns the API root the Connector sends requests to.
	BaseURL() string
}
