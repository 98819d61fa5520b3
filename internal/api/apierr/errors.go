package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/tagmatch/internal/model"
	"github.com/mcoot/tagmatch/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeNotHost             = "NOT_HOST"
	CodePlayerNotFound      = "PLAYER_NOT_FOUND"
	CodeUsernameExists      = "USERNAME_EXISTS"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeInvalidJoinCode     = "INVALID_JOIN_CODE"
	CodeAllocationNotFound  = "ALLOCATION_NOT_FOUND"
	CodeEntryNotFound       = "ENTRY_NOT_FOUND"
	CodeEntryFull           = "ENTRY_FULL"
	CodeNoActiveSession     = "NO_ACTIVE_SESSION"
	CodeMatchInProgress     = "MATCH_IN_PROGRESS"
	CodeParticipantNotFound = "PARTICIPANT_NOT_FOUND"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// Players
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid username or password"}}
	case errors.Is(err, auth.ErrInvalidSession), errors.Is(err, model.ErrSessionNotFound):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	case errors.Is(err, auth.ErrUsernameExists):
		return &httpError{http.StatusConflict, APIError{CodeUsernameExists, "Username already exists"}}

	// Relay
	case errors.Is(err, model.ErrInvalidJoinCode):
		return &httpError{http.StatusNotFound, APIError{CodeInvalidJoinCode, "Join code is not valid"}}
	case errors.Is(err, model.ErrAllocationNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeAllocationNotFound, "Allocation not found"}}

	// Registry
	case errors.Is(err, model.ErrEntryNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeEntryNotFound, "Lobby not found"}}
	case errors.Is(err, model.ErrEntryFull):
		return &httpError{http.StatusConflict, APIError{CodeEntryFull, "Lobby is full"}}

	// Match
	case errors.Is(err, model.ErrNotHost):
		return &httpError{http.StatusForbidden, APIError{CodeNotHost, "Only the host can perform this action"}}
	case errors.Is(err, model.ErrNoActiveSession):
		return &httpError{http.StatusConflict, APIError{CodeNoActiveSession, "No match is being hosted"}}
	case errors.Is(err, model.ErrTimerRunning):
		return &httpError{http.StatusConflict, APIError{CodeMatchInProgress, "Match is already in progress"}}
	case errors.Is(err, model.ErrParticipantNotFound), errors.Is(err, model.ErrIdentityNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeParticipantNotFound, "Participant not found"}}

	// Collaborators
	case errors.Is(err, model.ErrAllocationFailure),
		errors.Is(err, model.ErrJoinCodeFailure),
		errors.Is(err, model.ErrRegistryFailure):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeServiceUnavailable, "Service temporarily unavailable"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
