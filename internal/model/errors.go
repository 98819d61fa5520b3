package model

import "errors"

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound  = errors.New("player not found")
	ErrSessionNotFound = errors.New("session not found")

	// External service failures
	ErrAuthenticationFailure = errors.New("authentication failed")
	ErrAllocationFailure     = errors.New("relay allocation failed")
	ErrJoinCodeFailure       = errors.New("join code request failed")
	ErrRegistryFailure       = errors.New("matchmaking registry request failed")

	// Session errors
	ErrSessionStartFailed   = errors.New("session start failed")
	ErrSessionAlreadyActive = errors.New("session already active")
	ErrConfiguration        = errors.New("configuration error")
	ErrNotConnected         = errors.New("not connected")
	ErrNoActiveSession      = errors.New("no match is being hosted")
	ErrNotHost              = errors.New("only the host can perform this action")

	// Connection errors
	ErrConnectionRejected = errors.New("connection rejected")
	ErrIdentityNotFound   = errors.New("identity not found")

	// Replication errors
	ErrNotAuthority = errors.New("write requires authority")

	// Match errors
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantExists   = errors.New("participant already exists")
	ErrTimerRunning        = errors.New("match timer already running")

	// Relay errors
	ErrAllocationNotFound = errors.New("allocation not found")
	ErrInvalidJoinCode    = errors.New("invalid join code")

	// Registry errors
	ErrEntryNotFound = errors.New("registry entry not found")
	ErrEntryFull     = errors.New("registry entry is full")
)

// RejectionError reports why a connection was denied
type RejectionError struct {
	Reason DenyReason
}

func (e *RejectionError) Error() string {
	return "connection rejected: " + string(e.Reason)
}

// Unwrap lets errors.Is match ErrConnectionRejected
func (e *RejectionError) Unwrap() error {
	return ErrConnectionRejected
}
