// Package httputil centralizes HTTP client construction and error-body
// decoding for the REST collaborators (authorization service, conversation
// API) so every caller uses the same timeouts and the same error shape.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// Standard timeout defaults used across the module.
const (
	// DefaultAuthTimeout bounds a single refresh exchange with the authorization service.
	DefaultAuthTimeout = 15 * time.Second

	// DefaultAPITimeout bounds conversation REST calls.
	DefaultAPITimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response body is read.
	maxErrorBody = 64 * 1024
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// ErrorDetail extracts a human-readable reason from a failed response.
// Services in this system answer errors with {"detail": "..."}; when the body
// is not that shape the status text is returned instead.
func ErrorDetail(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != nil {
		switch d := payload.Detail.(type) {
		case string:
			return d
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}

	if text := strings.TrimSpace(http.StatusText(resp.StatusCode)); text != "" {
		return text
	}
	return resp.Status
}
