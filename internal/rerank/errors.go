package rerank

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// maxErrorBodyBytes caps how much of an error response body is kept for
// the error message.
const maxErrorBodyBytes = 2048

// APIError is a non-200 response from the rerank API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rerank api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("rerank api: status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed on another attempt.
// Rate limiting and server faults are transient; everything else means
// the request itself is wrong.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// newAPIError builds an APIError from an error response body. The API
// reports failures as {"message": "..."}; anything else is kept verbatim,
// truncated.
func newAPIError(statusCode int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return &APIError{StatusCode: statusCode, Message: payload.Message}
	}

	message := strings.TrimSpace(string(body))
	if len(message) > maxErrorBodyBytes {
		message = message[:maxErrorBodyBytes]
	}
	return &APIError{StatusCode: statusCode, Message: message}
}
