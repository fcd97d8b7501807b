package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error exposes methods useful for categorizing errors returned by the carpool API.
type Error interface {
	error

	// Temporary returns true if the Error might be the result of a transient condition, such as a
	// dropped connection or an overloaded server. Clients never retry automatically; callers may
	// use this to decide whether to offer a "retry" prompt.
	Temporary() bool

	// StatusCode returns the HTTP status the server responded with, or zero if no response was
	// received.
	StatusCode() int
}

var (
	// ErrNotReady indicates an operation that requires a bootstrapped session was invoked before
	// bootstrap completed.
	ErrNotReady = errors.New("session not bootstrapped")
	// ErrAlreadyBootstrapped indicates Bootstrap was called more than once.
	ErrAlreadyBootstrapped = errors.New("session already bootstrapped")
	// ErrNoSession indicates the caller requires an authenticated session but none exists.
	ErrNoSession = &AuthError{Code: http.StatusUnauthorized, Message: "not logged in"}
	// ErrNoRefreshToken indicates a refresh was requested but no refresh token is persisted.
	ErrNoRefreshToken = &AuthError{Code: http.StatusUnauthorized, Message: "no refresh token available"}
	// ErrResponseTooLarge indicates the server's response exceeded the client's size cap.
	ErrResponseTooLarge = errors.New("response exceeds maximum length")
)

// AuthError indicates the server rejected the client's credentials or the session expired.
type AuthError struct {
	Code    int
	Message string
	Err     error
	// Token is the bearer token the server rejected, or empty if the request carried none. It is
	// never included in the error text.
	Token string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Temporary() bool {
	return false
}

func (e *AuthError) StatusCode() int {
	return e.Code
}

// NetworkError indicates no response was received from the server.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *NetworkError) Temporary() bool {
	return true
}

func (e *NetworkError) StatusCode() int {
	return 0
}

// ValidationError indicates the server (or client-side validation) rejected a request with a 4xx
// status other than 401. Message is suitable for display.
type ValidationError struct {
	Code    int
	Message string
	Fields  map[string][]string
}

// NewValidationError returns a client-side ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Code:    http.StatusBadRequest,
		Message: fmt.Sprintf("%s: %s", field, message),
		Fields:  map[string][]string{field: {message}},
	}
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *ValidationError) Temporary() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

func (e *ValidationError) StatusCode() int {
	return e.Code
}

// ServerError indicates the server failed to process an otherwise valid request.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *ServerError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusBadGateway ||
		e.Code == http.StatusGatewayTimeout
}

func (e *ServerError) StatusCode() int {
	return e.Code
}

// IsUnauthorized returns true if err indicates the server rejected the session's token. Callers
// should treat the session as ended.
func IsUnauthorized(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Code == http.StatusUnauthorized
}

// Temporary returns true if err indicates a possibly transient failure.
func Temporary(err error) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Temporary()
	}
	return false
}

// StatusCode extracts the HTTP status associated with err. Errors outside the taxonomy map to
// 500; NetworkErrors map to 502.
func StatusCode(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return http.StatusBadGateway
	}
	var e Error
	if errors.As(err, &e) && e.StatusCode() != 0 {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}
