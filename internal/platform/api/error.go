package api

import (
	"net/http"
	"strconv"
)

// RetryAfterSeconds is advertised on 503 responses.
const RetryAfterSeconds = 2

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message, requestID string, details map[string]any) {
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details, RequestID: requestID}})
}

// ValidationFailed reports a single rejected input field. The field name is
// repeated in details so clients can highlight it.
func ValidationFailed(w http.ResponseWriter, field, reason, requestID string) {
	WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", field+": "+reason, requestID, map[string]any{"field": field})
}

func BadRequest(w http.ResponseWriter, code, message, requestID string, details map[string]any) {
	WriteError(w, http.StatusBadRequest, code, message, requestID, details)
}

func Unauthorized(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusUnauthorized, code, message, requestID, nil)
}

func Forbidden(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusForbidden, code, message, requestID, nil)
}

func NotFound(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusNotFound, code, message, requestID, nil)
}

func Conflict(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusConflict, code, message, requestID, nil)
}

func TooLarge(w http.ResponseWriter, code, message, requestID string) {
	WriteError(w, http.StatusRequestEntityTooLarge, code, message, requestID, nil)
}

// Unavailable reports a transient backend failure the client may retry.
func Unavailable(w http.ResponseWriter, requestID string) {
	w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable", requestID, nil)
}

func Internal(w http.ResponseWriter, requestID string) {
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", requestID, nil)
}
