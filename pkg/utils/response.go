package utils

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "request_id"

// GetRequestID retrieves the request ID from the context.
// Returns an empty string if no request ID is present.
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithRequestID adds a request ID to the context. Called by the request
// logging middleware.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ErrorResponse is the body of every non-2xx response. Error is a stable
// machine-readable code such as "no_session_found"; Message is for humans.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// MessageResponse acknowledges an operation that returns no data.
type MessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondWithError sends a JSON error response. An empty code defaults to
// the snake_case status text ("bad_request", "not_found", ...).
//
// Example:
//
//	utils.RespondWithError(w, r, http.StatusNotFound, "no_session_found",
//	    "We could not find your session. Please contact support.")
func RespondWithError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	if code == "" {
		code = codeForStatus(statusCode)
	}

	RespondWithJSON(w, r, statusCode, ErrorResponse{
		Success:   false,
		Error:     code,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
	})
}

// RespondWithJSON sends a JSON response with the given status code and data.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().
			Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("Failed to encode JSON response")
	}
}

// RespondWithMessage sends {"success": true, "message": ...} with status 200.
//
// Example:
//
//	utils.RespondWithMessage(w, r, "Session deleted")
func RespondWithMessage(w http.ResponseWriter, r *http.Request, message string) {
	RespondWithJSON(w, r, http.StatusOK, MessageResponse{
		Success:   true,
		Message:   message,
		RequestID: GetRequestID(r.Context()),
	})
}

func codeForStatus(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		return "error"
	}
	code := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'A' && c <= 'Z':
			code = append(code, c+('a'-'A'))
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			code = append(code, c)
		case len(code) > 0 && code[len(code)-1] != '_':
			code = append(code, '_')
		}
	}
	return string(code)
}
