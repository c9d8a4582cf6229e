package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNetwork     = errors.New("apiclient: no response from server")
	ErrNotFound    = errors.New("apiclient: resource not found")
	ErrClient      = errors.New("apiclient: request rejected")
	ErrServer      = errors.New("apiclient: server error")
	ErrBadResponse = errors.New("apiclient: malformed response body")
)

// NetworkErrorMessage is the normalized message for failures without a response.
const NetworkErrorMessage = "network error"

// APIError is the normalized failure of a remote operation. StatusCode is 0
// when no response was received at all.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
	Sentinel   error
	Err        error // lower-level transport or decode error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Operation, e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Sentinel
}

func networkError(op string, err error) *APIError {
	return &APIError{
		Operation:  op,
		StatusCode: 0,
		Message:    NetworkErrorMessage,
		Sentinel:   ErrNetwork,
		Err:        err,
	}
}

// statusError normalizes a non-2xx response.
func statusError(op string, code int, body []byte) *APIError {
	sentinel := ErrClient
	switch {
	case code == http.StatusNotFound:
		sentinel = ErrNotFound
	case code >= 500:
		sentinel = ErrServer
	}
	return &APIError{
		Operation:  op,
		StatusCode: code,
		Message:    extractMessage(code, body),
		Sentinel:   sentinel,
	}
}

// extractMessage prefers a structured error field, then the raw body, then a
// generic "HTTP {code}".
func extractMessage(code int, body []byte) string {
	var structured map[string]json.RawMessage
	if err := json.Unmarshal(body, &structured); err == nil {
		for _, field := range []string{"error", "detail", "message"} {
			raw, ok := structured[field]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && s != "" {
				return s
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", code)
}

// StatusCode returns the HTTP status carried by err, 0 for transport failures,
// and -1 when err is not an *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return -1
}
