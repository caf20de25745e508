// Package httpErrors describes non-2xx answers from the procurement backend
// and maps them onto domain error codes.
package httpErrors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	dErrors "procura/pkg/domain-errors"
)

// maxMessageLength bounds backend text surfaced to users.
const maxMessageLength = 512

// HTTPError is a backend response with a non-2xx status.
type HTTPError struct {
	Status  int
	Body    []byte
	Message string
}

func (e *HTTPError) Error() string {
	return "backend returned " + strconv.Itoa(e.Status) + ": " + e.Message
}

// New builds an HTTPError, extracting the message from body.
func New(status int, body []byte) *HTTPError {
	return &HTTPError{Status: status, Body: body, Message: Message(status, body)}
}

// Message extracts a human-readable message from an error response.
// JSON bodies are searched for message, error_description and error in that
// order; anything else falls back to the raw text, then to the status text.
func Message(status int, body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error_description", "error"} {
			if msg, ok := payload[key].(string); ok && strings.TrimSpace(msg) != "" {
				return truncate(strings.TrimSpace(msg))
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") {
		return truncate(text)
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "request failed"
}

// CodeForStatus maps a backend status to a domain error code.
func CodeForStatus(status int) dErrors.Code {
	switch {
	case status == http.StatusUnauthorized:
		return dErrors.CodeUnauthorized
	case status == http.StatusForbidden:
		return dErrors.CodeForbidden
	case status == http.StatusNotFound:
		return dErrors.CodeNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return dErrors.CodeTimeout
	case status >= 500:
		return dErrors.CodeUpstream
	case status >= 400:
		return dErrors.CodeBadRequest
	default:
		return dErrors.CodeUpstream
	}
}

// ToDomain wraps e in a domain error categorised by its status, so callers
// can match on the code and still reach the HTTPError with errors.As.
func (e *HTTPError) ToDomain() error {
	return dErrors.Wrap(e, CodeForStatus(e.Status), e.Message)
}

// IsServerError reports whether status counts against the backend's health.
func IsServerError(status int) bool {
	return status >= 500
}

// truncate cuts s to at most maxMessageLength bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxMessageLength {
		return s
	}
	cut := maxMessageLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
