package model

// AuthID is the durable identity issued by the authentication service.
// It is the player id of the authenticated account.
type AuthID string

// ConnectionID is the transient id the transport assigns to a connection
type ConnectionID uint64

// UserIdentity is the identity payload a client submits when connecting.
// Field names match the handshake wire format.
type UserIdentity struct {
	Username string `json:"username"`
	AuthID   AuthID `json:"userAuthId"`

	// IdentityToken is a signed token proving ownership of AuthID (optional)
	IdentityToken string `json:"identityToken,omitempty"`
}

// DisplayName returns the username, or a placeholder when it is empty
func (u UserIdentity) DisplayName() string {
	if u.Username == "" {
		return "Unknown Player"
	}
	return u.Username
}

// ConnectionBinding ties a live connection to the identity it presented
type ConnectionBinding struct {
	ConnectionID ConnectionID
	AuthID       AuthID
}

// SpawnPoint is a position handed to a newly approved participant
type SpawnPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DenyReason explains why a connection was not approved
type DenyReason string

const (
	DenyNone              DenyReason = ""
	DenyInvalidPayload    DenyReason = "invalid_payload"
	DenyDuplicateIdentity DenyReason = "duplicate_identity"
	DenySessionClosed     DenyReason = "session_closed"
	DenyMatchFull         DenyReason = "match_full"
)
