package model

// SessionState is the host session lifecycle state
type SessionState string

const (
	SessionIdle                SessionState = "idle"
	SessionAcquiringAllocation SessionState = "acquiring_allocation"
	SessionAcquiringJoinCode   SessionState = "acquiring_join_code"
	SessionRegisteringMatch    SessionState = "registering_match"
	SessionRunning             SessionState = "running"
	SessionShuttingDown        SessionState = "shutting_down"
)

// SessionInfo describes the external resources of one hosted match
type SessionInfo struct {
	AllocationID    string `json:"allocation_id"`
	JoinCode        string `json:"join_code"`
	RegistryEntryID string `json:"registry_entry_id"`
}

// Screen is the client-side presentation state the session manager drives
type Screen string

const (
	ScreenPreMatch Screen = "pre_match"
	ScreenInMatch  Screen = "in_match"
)
