package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP error with a status code, a machine code,
// and a human-readable message. The message is what clients surface to the
// user verbatim, so it must always be presentable.
type HTTPError struct {
	Status  int    // HTTP status code (e.g., 400, 404, 500)
	Code    string // Stable machine-readable code (e.g., "not_found")
	Message string // Message returned to the client
	Err     error  // Optional underlying error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// BadRequestf creates a 400 Bad Request error with a formatted message.
func BadRequestf(format string, args ...any) *HTTPError {
	return &HTTPError{Status: 400, Code: "bad_request", Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *HTTPError {
	return &HTTPError{Status: 404, Code: "not_found", Message: message}
}

// TooManyRequests creates a 429 error for rate-limited writes.
func TooManyRequests() *HTTPError {
	return &HTTPError{Status: 429, Code: "rate_limited", Message: "Too many requests, slow down"}
}

// Unavailable creates a 503 error for unconfigured optional features.
func Unavailable(message string) *HTTPError {
	return &HTTPError{Status: 503, Code: "unavailable", Message: message}
}

// Internal wraps an unexpected failure as a 500. The underlying error is
// kept for logs; the client sees only the generic message.
func Internal(err error) *HTTPError {
	return &HTTPError{Status: 500, Code: "internal", Message: "Internal server error", Err: err}
}

// writeError sends the structured error envelope clients decode.
func writeError(w http.ResponseWriter, httpErr *HTTPError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    httpErr.Code,
			"message": httpErr.Message,
		},
	})
}

// writeJSON sends a success payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
