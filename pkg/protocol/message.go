package protocol

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Field names the server uses for human-readable messages, in order of preference.
var messageFields = []string{"detail", "error", "message", "non_field_errors"}

// ErrorFromResponse converts a non-2xx response into an error from the taxonomy.
//
// The server reports errors either as {"detail": "..."}, {"error": "..."}, or as a map of field
// names to lists of messages. The first human-readable message found is used as the error text.
func ErrorFromResponse(code int, body []byte) error {
	message, fields := ParseErrorBody(body)
	switch {
	case code == http.StatusUnauthorized:
		return &AuthError{Code: code, Message: message}
	case code >= 400 && code < 500:
		return &ValidationError{Code: code, Message: message, Fields: fields}
	default:
		return &ServerError{Code: code, Message: message}
	}
}

// ParseErrorBody extracts a display message and per-field messages from an error payload. Bodies
// that are not JSON objects yield an empty message.
func ParseErrorBody(body []byte) (string, map[string][]string) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", nil
	}

	fields := make(map[string][]string)
	for name, value := range raw {
		if messages := decodeMessages(value); len(messages) > 0 {
			fields[name] = messages
		}
	}

	for _, name := range messageFields {
		if messages, ok := fields[name]; ok {
			delete(fields, name)
			return messages[0], fields
		}
	}

	if len(fields) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s: %s", names[0], strings.Join(fields[names[0]], " ")), fields
}

func decodeMessages(value json.RawMessage) []string {
	var single string
	if err := json.Unmarshal(value, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(value, &list); err == nil {
		return list
	}
	return nil
}
