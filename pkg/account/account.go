package account

import (
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/connector"
	"github.com/covoit/carpool-sdk/pkg/connector/inet"
)

var (
	//go:embed version.txt
	libraryVersion string
)

// BuildUserAgent returns the User-Agent sent with API requests. If app is empty, it is derived
// from the main module's build information.
func BuildUserAgent(app string) string {
	library := strings.TrimSpace("carpool-sdk/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		if app == "" {
			return library
		}
		return fmt.Sprintf("%s %s", app, library)
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	return fmt.Sprintf("%s %s", app, library)
}

// Claims are the fields of an access token the client relies on. The client never verifies token
// signatures; that is the server's responsibility.
type Claims struct {
	UserID    json.Number `json:"user_id"`
	TokenType string      `json:"token_type"`
	jwt.RegisteredClaims
}

// ParseToken decodes the claims of a JWT without verifying its signature.
func ParseToken(token string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), &claims); err != nil {
		return nil, fmt.Errorf("malformed access token: %w", err)
	}
	return &claims, nil
}

// TokenExpiry returns the expiration time embedded in token. If the token carries no readable
// expiry, fallback is added to the current time.
func TokenExpiry(token string, fallback time.Duration) time.Time {
	claims, err := ParseToken(token)
	if err != nil || claims.ExpiresAt == nil {
		if err != nil {
			log.Debug("Could not read token expiry, assuming %s: %s", fallback, err)
		}
		return time.Now().Add(fallback)
	}
	return claims.ExpiresAt.Time
}

// Account allows interaction with the carpool API on behalf of whichever user the underlying
// connector authorizes requests for.
type Account struct {
	conn connector.Connector
}

// New returns an Account that sends requests through conn.
func New(conn connector.Connector) *Account {
	return &Account{conn: conn}
}

// Dial returns an Account backed by an HTTP connection to baseURL. Requests are authorized with
// tokens from the provided source, which may be nil.
func Dial(baseURL string, tokens connector.TokenSource, userAgent string) (*Account, error) {
	conn, err := inet.NewConnection(baseURL, tokens, BuildUserAgent(userAgent))
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Connector returns the transport used by a.
func (a *Account) Connector() connector.Connector {
	return a.conn
}

func (a *Account) request(ctx context.Context, method, endpoint string, query url.Values, body, out interface{}) error {
	rsp, err := a.conn.Do(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(rsp) == 0 {
		return nil
	}
	if err := json.Unmarshal(rsp, out); err != nil {
		return fmt.Errorf("unable to parse response from %s: %w", endpoint, err)
	}
	return nil
}

func get[T any](ctx context.Context, a *Account, endpoint string, query url.Values) (*T, error) {
	var out T
	if err := a.request(ctx, http.MethodGet, endpoint, query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func send[T any](ctx context.Context, a *Account, method, endpoint string, body interface{}) (*T, error) {
	var out T
	if err := a.request(ctx, method, endpoint, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get sends an HTTP GET request to endpoint and returns the raw response body.
//
// The endpoint should contain only the path relative to the API root (e.g., "trips/12/").
func (a *Account) Get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	return a.conn.Do(ctx, http.MethodGet, endpoint, query, nil)
}

// Post sends an HTTP POST request to endpoint. Returns the HTTP body of the response.
func (a *Account) Post(ctx context.Context, endpoint string, data []byte) ([]byte, error) {
	return a.conn.Do(ctx, http.MethodPost, endpoint, nil, data)
}
