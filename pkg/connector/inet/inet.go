package inet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/covoit/carpool-sdk/internal/log"
	"github.com/covoit/carpool-sdk/pkg/connector"
	"github.com/covoit/carpool-sdk/pkg/protocol"
)

// DefaultBaseURL is the API root used by the development backend.
const DefaultBaseURL = "http://localhost:8000/api/"

const tracerName = "github.com/covoit/carpool-sdk/pkg/connector/inet"

// RequestIDHeader carries a per-request identifier so that client and server logs can be joined.
const RequestIDHeader = "X-Request-ID"

// Connection implements the connector.Connector interface over HTTP.
type Connection struct {
	UserAgent string
	baseURL   *url.URL
	client    http.Client
	tokens    connector.TokenSource
}

// NewConnection creates a Connection that sends requests relative to baseURL. The tokens parameter
// may be nil, in which case requests are never authorized.
func NewConnection(baseURL string, tokens connector.TokenSource, userAgent string) (*Connection, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL '%s': scheme must be http or https", baseURL)
	}
	return &Connection{
		UserAgent: userAgent,
		baseURL:   u,
		tokens:    tokens,
	}, nil
}

// SetTokenSource replaces the source of bearer tokens.
func (c *Connection) SetTokenSource(tokens connector.TokenSource) {
	c.tokens = tokens
}

func (c *Connection) BaseURL() string {
	return c.baseURL.String()
}

func (c *Connection) resolve(endpoint string, query url.Values) (string, error) {
	ref, err := url.Parse(strings.TrimPrefix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint '%s': %w", endpoint, err)
	}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func encodeBody(body interface{}) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error encoding request body: %w", err)
	}
	return bytes.NewReader(encoded), nil
}

func (c *Connection) Do(ctx context.Context, method, endpoint string, query url.Values, body interface{}) ([]byte, error) {
	target, err := c.resolve(endpoint, query)
	if err != nil {
		return nil, err
	}
	payload, err := encodeBody(body)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx, span := otel.Tracer(tracerName).Start(ctx, method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target),
			attribute.String("carpool.request_id", requestID),
		))
	defer span.End()

	request, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error constructing request to %s: %w", endpoint, err)
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.UserAgent != "" {
		request.Header.Set("User-Agent", c.UserAgent)
	}
	request.Header.Set(RequestIDHeader, requestID)
	var bearer string
	if c.tokens != nil {
		if token, ok := c.tokens.AccessToken(); ok {
			bearer = token
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}

	log.Debug("[%s] %s %s", requestID, method, target)
	response, err := c.client.Do(request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &protocol.NetworkError{Err: err}
	}
	defer response.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", response.StatusCode))

	reader := io.LimitedReader{R: response.Body, N: connector.MaxResponseLength + 1}
	rsp, err := io.ReadAll(&reader)
	if err != nil {
		span.RecordError(err)
		return nil, &protocol.NetworkError{Err: err}
	}
	if len(rsp) > connector.MaxResponseLength {
		span.SetStatus(codes.Error, protocol.ErrResponseTooLarge.Error())
		return nil, protocol.ErrResponseTooLarge
	}

	log.Debug("[%s] Server returned %d: %s", requestID, response.StatusCode, http.StatusText(response.StatusCode))
	if response.StatusCode < 200 || response.StatusCode > 299 {
		err := protocol.ErrorFromResponse(response.StatusCode, rsp)
		if authErr, ok := err.(*protocol.AuthError); ok {
			authErr.Token = bearer
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rsp, nil
}
