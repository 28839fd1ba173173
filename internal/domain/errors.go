package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorCode represents a specific error condition reported by the local API.
type ErrorCode string

const (
	ErrInvalidAPIKey ErrorCode = "InvalidAPIKey"       // HTTP 401
	ErrBadRequest    ErrorCode = "BadRequest"          // HTTP 400
	ErrNotFound      ErrorCode = "NotFound"            // HTTP 404
	ErrDisposedCode  ErrorCode = "Disposed"            // HTTP 409, connection already torn down
	ErrInternal      ErrorCode = "InternalServerError" // HTTP 500
)

var (
	// ErrNotConnected is returned when an emit is attempted without a live socket.
	ErrNotConnected = errors.New("socket not connected")
	// ErrDisposed is returned by operations on a connection after Dispose.
	ErrDisposed = errors.New("connection disposed")
	// ErrHandshake wraps Engine.IO / Socket.IO handshake failures.
	ErrHandshake = errors.New("socket handshake failed")
	// ErrUnsupportedTransport is returned for an unknown transport name in config.
	ErrUnsupportedTransport = errors.New("unsupported transport")
	// ErrEstablishmentRequired is returned when an establishment id is empty.
	ErrEstablishmentRequired = errors.New("establishment id is required")
	// ErrSessionNotFound is returned when no dashboard session is stored for an establishment.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorResponse is the standard error format returned to UI clients via HTTP JSON.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not handled here.
}
